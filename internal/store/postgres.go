package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yourorg/invest-api/listing"
)

// Store is the Postgres repository for crawled listings. The search service
// only reads from it; the crawler owns the write path.
type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id               BIGSERIAL PRIMARY KEY,
			source           TEXT NOT NULL,
			external_id      TEXT NOT NULL,
			address          TEXT NOT NULL,
			postcode         TEXT,
			price            NUMERIC,
			bedrooms         SMALLINT,
			bathrooms        SMALLINT,
			square_feet      NUMERIC,
			property_type    TEXT,
			description      TEXT,
			image_url        TEXT,
			images           JSONB,
			features         JSONB,
			rental_estimate  NUMERIC,
			roi_estimate     NUMERIC,
			investment_score SMALLINT,
			agent            JSONB,
			property_details JSONB,
			market_trends    JSONB,
			url              TEXT,
			lat              DOUBLE PRECISION,
			lon              DOUBLE PRECISION,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_listings_source_external ON listings(source, external_id);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_bedrooms ON listings(bedrooms);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_postcode ON listings(postcode);`,
		`CREATE TABLE IF NOT EXISTS provider_raw_snapshots (
			id             BIGSERIAL PRIMARY KEY,
			provider       TEXT NOT NULL,
			external_id    TEXT,
			payload        JSONB NOT NULL,
			fetched_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			payload_sha256 TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_provider ON provider_raw_snapshots(provider, fetched_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// ListingRecord is one listings row with nullable columns preserved.
type ListingRecord struct {
	Source          string
	ExternalID      string
	Address         string
	Postcode        sql.NullString
	Price           sql.NullFloat64
	Bedrooms        sql.NullInt64
	Bathrooms       sql.NullInt64
	SquareFeet      sql.NullFloat64
	PropertyType    sql.NullString
	Description     sql.NullString
	ImageURL        sql.NullString
	ImagesJSON      []byte
	FeaturesJSON    []byte
	RentalEstimate  sql.NullFloat64
	ROIEstimate     sql.NullFloat64
	InvestmentScore sql.NullInt64
	AgentJSON       []byte
	DetailsJSON     []byte
	TrendsJSON      []byte
	URL             sql.NullString
	Lat             sql.NullFloat64
	Lon             sql.NullFloat64
}

// Raw converts a row back into the normalizer's input shape so database
// results flow through the same pipeline as vendor records.
func (r ListingRecord) Raw() listing.Raw {
	raw := listing.Raw{
		ID:           r.ExternalID,
		Address:      r.Address,
		Postcode:     r.Postcode.String,
		SalePrice:    r.Price.Float64,
		PropertyType: r.PropertyType.String,
		Description:  r.Description.String,
		URL:          r.URL.String,
		Latitude:     r.Lat.Float64,
		Longitude:    r.Lon.Float64,
	}
	if r.Bedrooms.Valid && r.Bedrooms.Int64 > 0 {
		v := int(r.Bedrooms.Int64)
		raw.Bedrooms = &v
	}
	if r.Bathrooms.Valid && r.Bathrooms.Int64 > 0 {
		v := int(r.Bathrooms.Int64)
		raw.Bathrooms = &v
	}
	if r.SquareFeet.Valid && r.SquareFeet.Float64 > 0 {
		v := r.SquareFeet.Float64
		raw.SquareFeet = &v
	}
	if r.RentalEstimate.Valid && r.RentalEstimate.Float64 > 0 {
		v := r.RentalEstimate.Float64
		raw.Rental = &v
		if r.ROIEstimate.Valid && r.ROIEstimate.Float64 > 0 {
			roi := r.ROIEstimate.Float64
			raw.ROI = &roi
		}
	}
	if len(r.ImagesJSON) > 0 {
		_ = json.Unmarshal(r.ImagesJSON, &raw.Images)
	}
	if len(r.FeaturesJSON) > 0 {
		_ = json.Unmarshal(r.FeaturesJSON, &raw.Features)
	}
	if len(r.AgentJSON) > 0 {
		var a listing.Agent
		if json.Unmarshal(r.AgentJSON, &a) == nil && a.Name != "" {
			raw.Agent = &a
		}
	}
	if len(r.DetailsJSON) > 0 {
		var d listing.PropertyDetails
		if json.Unmarshal(r.DetailsJSON, &d) == nil {
			raw.Details = &d
		}
	}
	if len(r.TrendsJSON) > 0 {
		var tr listing.MarketTrends
		if json.Unmarshal(r.TrendsJSON, &tr) == nil {
			raw.Trends = &tr
		}
	}
	return raw
}

const selectColumns = `source, external_id, address, postcode, price, bedrooms, bathrooms,
	square_feet, property_type, description, image_url, images, features,
	rental_estimate, roi_estimate, investment_score, agent, property_details,
	market_trends, url, lat, lon`

// QueryListings runs a filtered read against the listings table. Location
// matches address or postcode with ILIKE; range filters map to SQL bounds.
func (s *Store) QueryListings(ctx context.Context, f listing.SearchFilters) ([]ListingRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("nil db")
	}
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Location != "" {
		p := arg("%" + f.Location + "%")
		where = append(where, fmt.Sprintf("(address ILIKE %s OR postcode ILIKE %s)", p, p))
	}
	if f.Postcode != "" {
		where = append(where, "postcode ILIKE "+arg(f.Postcode+"%"))
	}
	if f.PropertyType != "" {
		where = append(where, "property_type ILIKE "+arg("%"+f.PropertyType+"%"))
	}
	if f.MinPrice > 0 {
		where = append(where, "price >= "+arg(f.MinPrice))
	}
	if f.MaxPrice > 0 {
		where = append(where, "price <= "+arg(f.MaxPrice))
	}
	if f.MinBedrooms > 0 {
		where = append(where, "bedrooms >= "+arg(f.MinBedrooms))
	}
	if f.MaxBedrooms > 0 {
		where = append(where, "bedrooms <= "+arg(f.MaxBedrooms))
	}

	q := "SELECT " + selectColumns + " FROM listings"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY investment_score DESC NULLS LAST, updated_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " LIMIT " + arg(limit)
	if f.Page > 1 {
		q += " OFFSET " + arg((f.Page-1)*limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListingRecord
	for rows.Next() {
		var r ListingRecord
		if err := rows.Scan(
			&r.Source, &r.ExternalID, &r.Address, &r.Postcode, &r.Price,
			&r.Bedrooms, &r.Bathrooms, &r.SquareFeet, &r.PropertyType,
			&r.Description, &r.ImageURL, &r.ImagesJSON, &r.FeaturesJSON,
			&r.RentalEstimate, &r.ROIEstimate, &r.InvestmentScore,
			&r.AgentJSON, &r.DetailsJSON, &r.TrendsJSON, &r.URL, &r.Lat, &r.Lon,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertListing writes one normalized listing plus its raw vendor payload in
// a single transaction. Conflicts on (source, external_id) refresh the row.
func (s *Store) UpsertListing(ctx context.Context, l *listing.Listing, rawPayload []byte) error {
	if s == nil || s.DB == nil {
		return errors.New("nil db")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	images, _ := json.Marshal(l.Images)
	features, _ := json.Marshal(l.Features)
	agent, _ := json.Marshal(l.Agent)
	details, _ := json.Marshal(l.PropertyDetails)
	trends, _ := json.Marshal(l.MarketTrends)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (
			source, external_id, address, postcode, price, bedrooms, bathrooms,
			square_feet, property_type, description, image_url, images, features,
			rental_estimate, roi_estimate, investment_score, agent,
			property_details, market_trends, url, lat, lon
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (source, external_id) DO UPDATE SET
			address=EXCLUDED.address, postcode=EXCLUDED.postcode,
			price=EXCLUDED.price, bedrooms=EXCLUDED.bedrooms,
			bathrooms=EXCLUDED.bathrooms, square_feet=EXCLUDED.square_feet,
			property_type=EXCLUDED.property_type, description=EXCLUDED.description,
			image_url=EXCLUDED.image_url, images=EXCLUDED.images,
			features=EXCLUDED.features, rental_estimate=EXCLUDED.rental_estimate,
			roi_estimate=EXCLUDED.roi_estimate,
			investment_score=EXCLUDED.investment_score, agent=EXCLUDED.agent,
			property_details=EXCLUDED.property_details,
			market_trends=EXCLUDED.market_trends, url=EXCLUDED.url,
			lat=EXCLUDED.lat, lon=EXCLUDED.lon, updated_at=now()`,
		l.Source, l.ID, l.Address, nullString(l.Postcode), nullFloat(l.Price),
		nullInt(int64(l.Bedrooms)), nullInt(int64(l.Bathrooms)),
		nullFloat(l.SquareFeet), nullString(l.PropertyType),
		nullString(l.Description), nullString(l.ImageURL), images, features,
		nullFloat(l.RentalEstimate), nullFloat(l.ROIEstimate),
		l.InvestmentScore, agent, details, trends, nullString(l.URL),
		nullFloat(l.Latitude), nullFloat(l.Longitude),
	)
	if err != nil {
		return err
	}

	if len(rawPayload) > 0 {
		sum := sha256.Sum256(rawPayload)
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO provider_raw_snapshots (provider, external_id, payload, payload_sha256)
			VALUES ($1,$2,$3,$4)`,
			l.Source, l.ID, string(rawPayload), hex.EncodeToString(sum[:]),
		); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
