package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Procurement documents are owned by the purchasing subsystem. The match
// engine resolves their lines by ItemKey and never mutates them.

type PurchaseOrder struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	EntityID  uuid.UUID           `gorm:"column:entity_id;type:uuid;not null;index"`
	VendorID  *uuid.UUID          `gorm:"column:vendor_id;type:uuid"`
	OrderDate time.Time           `gorm:"column:order_date"`
	Lines     []PurchaseOrderLine `gorm:"foreignKey:POID"`
}

type PurchaseOrderLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	POID      uuid.UUID       `gorm:"column:po_id;type:uuid;not null;index"`
	ItemKey   string          `gorm:"column:item_key;not null"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(18,2);not null"`
}

type GoodsReceivedNote struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	EntityID     uuid.UUID               `gorm:"column:entity_id;type:uuid;not null;index"`
	POID         *uuid.UUID              `gorm:"column:po_id;type:uuid"`
	ReceivedDate time.Time               `gorm:"column:received_date"`
	Lines        []GoodsReceivedNoteLine `gorm:"foreignKey:GRNID"`
}

type GoodsReceivedNoteLine struct {
	ID       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	GRNID    uuid.UUID       `gorm:"column:grn_id;type:uuid;not null;index"`
	ItemKey  string          `gorm:"column:item_key;not null"`
	Quantity decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
}

type Invoice struct {
	ID          uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	EntityID    uuid.UUID     `gorm:"column:entity_id;type:uuid;not null;index"`
	POID        *uuid.UUID    `gorm:"column:po_id;type:uuid"`
	InvoiceDate time.Time     `gorm:"column:invoice_date"`
	Lines       []InvoiceLine `gorm:"foreignKey:InvoiceID"`
}

type InvoiceLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceID uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	ItemKey   string          `gorm:"column:item_key;not null"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(18,2);not null"`
}
