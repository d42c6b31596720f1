package storage

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Exchange is a dimension row keyed by Name.
type Exchange struct {
	ID        uint           `gorm:"primaryKey"`
	Name      string         `gorm:"type:varchar(64);not null;uniqueIndex:uq_exchange_name"`
	BaseURL   string         `gorm:"type:text"`
	P2PURL    string         `gorm:"type:text"`
	Fiats     pq.StringArray `gorm:"type:text[]"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (Exchange) TableName() string { return "exchange" }

// NaturalKey implements Keyed.
func (e Exchange) NaturalKey() string { return e.Name }

// Asset is a dimension row keyed by Symbol.
type Asset struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"type:varchar(20);not null;uniqueIndex:uq_asset_symbol"`
	Name      string    `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Asset) TableName() string { return "asset" }

func (a Asset) NaturalKey() string { return a.Symbol }

// Fiat is a dimension row keyed by Code.
type Fiat struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"type:char(3);not null;uniqueIndex:uq_fiat_code"`
	Name      string    `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Fiat) TableName() string { return "fiat" }

func (f Fiat) NaturalKey() string { return f.Code }

type P2PSnapshot struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null;index:idx_p2p_snapshot_created"`
}

func (P2PSnapshot) TableName() string { return "p2p_snapshot" }

type SpotSnapshot struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null;index:idx_spot_snapshot_created"`
}

func (SpotSnapshot) TableName() string { return "spot_snapshot" }

// P2POrder is an immutable fact row. Associations are only populated by
// read queries.
type P2POrder struct {
	ID uint64 `gorm:"primaryKey"`

	SnapshotID uint         `gorm:"not null;index:idx_p2p_order_snapshot"`
	Snapshot   *P2PSnapshot `gorm:"foreignKey:SnapshotID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	ExchangeID uint         `gorm:"not null;index:idx_p2p_order_exchange_asset"`
	Exchange   *Exchange    `gorm:"foreignKey:ExchangeID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	AssetID    uint         `gorm:"not null;index:idx_p2p_order_exchange_asset"`
	Asset      *Asset       `gorm:"foreignKey:AssetID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	FiatID     uint         `gorm:"not null"`
	Fiat       *Fiat        `gorm:"foreignKey:FiatID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`

	Side      string          `gorm:"type:varchar(4);not null"`
	Price     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Available decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	MinAmount decimal.Decimal `gorm:"type:numeric(30,10)"`
	MaxAmount decimal.Decimal `gorm:"type:numeric(30,10)"`

	PaymentMethods pq.StringArray `gorm:"type:text[]"`

	OrderID        string          `gorm:"type:varchar(128);index:idx_p2p_order_external"`
	UserID         string          `gorm:"type:varchar(128)"`
	UserName       string          `gorm:"type:varchar(255)"`
	CompletionRate decimal.Decimal `gorm:"type:numeric(10,4)"`
}

func (P2POrder) TableName() string { return "p2p_order" }

// SpotPair is an immutable fact row.
type SpotPair struct {
	ID uint64 `gorm:"primaryKey"`

	SnapshotID   uint          `gorm:"not null;index:idx_spot_pair_snapshot"`
	Snapshot     *SpotSnapshot `gorm:"foreignKey:SnapshotID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	ExchangeID   uint          `gorm:"not null"`
	Exchange     *Exchange     `gorm:"foreignKey:ExchangeID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	BaseAssetID  uint          `gorm:"not null"`
	BaseAsset    *Asset        `gorm:"foreignKey:BaseAssetID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	QuoteAssetID uint          `gorm:"not null"`
	QuoteAsset   *Asset        `gorm:"foreignKey:QuoteAssetID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`

	Symbol    string          `gorm:"type:varchar(40);not null"`
	Price     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Bid       decimal.Decimal `gorm:"type:numeric(30,10)"`
	Ask       decimal.Decimal `gorm:"type:numeric(30,10)"`
	Volume24h decimal.Decimal `gorm:"type:numeric(38,10)"`
	High24h   decimal.Decimal `gorm:"type:numeric(30,10)"`
	Low24h    decimal.Decimal `gorm:"type:numeric(30,10)"`
}

func (SpotPair) TableName() string { return "spot_pair" }

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&Exchange{}, &Asset{}, &Fiat{},
		&P2PSnapshot{}, &SpotSnapshot{},
		&P2POrder{}, &SpotPair{},
	}
}
