package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fornada-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// GetProduct returns one catalog product.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	var p Product
	var price pgtype.Numeric
	err := s.db.QueryRow(ctx,
		`SELECT id, name, price, tracked FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &price, &p.Tracked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product %s: %w", id, pgx.ErrNoRows)
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	p.Price = numericToDecimal(price)
	return p, nil
}

// ListAvailableUnits returns the AVAILABLE physical units for a catalog
// product, oldest first.
func (s *Store) ListAvailableUnits(ctx context.Context, productID uuid.UUID) ([]InventoryUnit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, weight_kg, price, status, created_at
		FROM inventory_units
		WHERE product_id = $1 AND status = $2
		ORDER BY created_at`,
		productID, enum.UnitStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available units: %w", err)
	}
	defer rows.Close()

	var units []InventoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list available units: %w", err)
	}
	return units, nil
}

// CreateUnitParams are the fields for an inventory unit insert (the
// create-and-link-on-the-spot path).
type CreateUnitParams struct {
	ProductID uuid.UUID
	WeightKg  decimal.Decimal
	Price     decimal.Decimal
}

// CreateUnit inserts a new AVAILABLE physical unit and returns it.
func (s *Store) CreateUnit(ctx context.Context, arg CreateUnitParams) (InventoryUnit, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO inventory_units (product_id, weight_kg, price, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, product_id, weight_kg, price, status, created_at`,
		arg.ProductID, decimalToNumeric(arg.WeightKg), decimalToNumeric(arg.Price),
		enum.UnitStatusAvailable)
	u, err := scanUnit(row)
	if err != nil {
		return InventoryUnit{}, fmt.Errorf("create unit: %w", err)
	}
	return u, nil
}

// GetUnit returns one physical inventory unit.
func (s *Store) GetUnit(ctx context.Context, id uuid.UUID) (InventoryUnit, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, product_id, weight_kg, price, status, created_at
		FROM inventory_units
		WHERE id = $1`, id)
	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InventoryUnit{}, ErrUnitNotFound
		}
		return InventoryUnit{}, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

// GetOrderItem returns one line item with its tracked flag joined from the
// catalog.
func (s *Store) GetOrderItem(ctx context.Context, itemID uuid.UUID) (OrderItem, error) {
	var it OrderItem
	var unitID pgtype.UUID
	var price, total pgtype.Numeric
	err := s.db.QueryRow(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.unit_id, i.name,
			i.unit_price, i.quantity, i.line_total, p.tracked
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.id = $1`, itemID,
	).Scan(&it.ID, &it.OrderID, &it.ProductID, &unitID, &it.Name,
		&price, &it.Quantity, &total, &it.Tracked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderItem{}, ErrItemNotFound
		}
		return OrderItem{}, fmt.Errorf("get order item: %w", err)
	}
	if unitID.Valid {
		u := uuid.UUID(unitID.Bytes)
		it.UnitID = &u
	}
	it.UnitPrice = numericToDecimal(price)
	it.LineTotal = numericToDecimal(total)
	return it, nil
}

// BindItemUnit binds a physical unit to a line item. The bind only succeeds
// when the item is still unlinked; it is one-way within the engine's flow.
func (s *Store) BindItemUnit(ctx context.Context, itemID, unitID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE order_items SET unit_id = $2 WHERE id = $1 AND unit_id IS NULL`,
		itemID, unitID)
	if err != nil {
		return fmt.Errorf("bind item unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyLinked
	}
	return nil
}

// MarkUnitSold moves an AVAILABLE unit to SOLD. Any other starting status
// fails with ErrUnitUnavailable, which also covers a unit concurrently
// claimed by another operator.
func (s *Store) MarkUnitSold(ctx context.Context, unitID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE inventory_units SET status = $2 WHERE id = $1 AND status = $3`,
		unitID, enum.UnitStatusSold, enum.UnitStatusAvailable)
	if err != nil {
		return fmt.Errorf("mark unit sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnitUnavailable
	}
	return nil
}

// CountUnlinkedTracked counts the order's line items that reference an
// internally-tracked product but have no bound physical unit. Zero means the
// order is eligible for the automatic advance to READY.
func (s *Store) CountUnlinkedTracked(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1 AND p.tracked AND i.unit_id IS NULL`,
		orderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unlinked tracked items: %w", err)
	}
	return n, nil
}

func scanUnit(row pgx.Row) (InventoryUnit, error) {
	var u InventoryUnit
	var weight, price pgtype.Numeric
	if err := row.Scan(&u.ID, &u.ProductID, &weight, &price, &u.Status, &u.CreatedAt); err != nil {
		return InventoryUnit{}, err
	}
	u.WeightKg = numericToDecimal(weight)
	u.Price = numericToDecimal(price)
	return u, nil
}
