package stores

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// pinRow is the relational layout of a pin. Optional fields are nullable columns.
type pinRow struct {
	ID              string         `gorm:"primaryKey;type:varchar(27)"`
	OwnerID         string         `gorm:"index;not null"`
	Owner           *profileRow    `gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:CASCADE"`
	TextContent     string         `gorm:"type:text;not null"`
	ImageURLs       pq.StringArray `gorm:"type:text[]"`
	MusicLink       *string
	GifURL          *string
	Sticker         *string
	BackgroundColor *string
	CreatedAt       time.Time `gorm:"index;not null"`
	IsArchived      bool      `gorm:"not null;default:false"`
}

func (pinRow) TableName() string { return "pins" }

type profileRow struct {
	ID       string `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	Email    string `gorm:"not null"`
}

func (profileRow) TableName() string { return "profiles" }

// OpenPostgres connects gorm to the postgres database at dsn
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
}

// Migrate creates or updates pin and profile tables along with the indexes feed queries rely on
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&profileRow{}, &pinRow{}); err != nil {
		return err
	}
	// feeds are always read most recent first
	return db.Exec("CREATE INDEX IF NOT EXISTS idx_pins_owner_created_at ON pins(owner_id, created_at DESC)").Error
}

// GormPinStore implements PinStore on a relational database through gorm
type GormPinStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewGormPinStore(db *gorm.DB) *GormPinStore {
	return &GormPinStore{DB: db, Now: time.Now}
}

func (s *GormPinStore) Create(ctx context.Context, ownerID string, vp *md.ValidatedPin, imageURLs []string) (*md.Pin, *pe.PinErr) {
	// postgres keeps microseconds; truncate upfront so the returned pin equals the stored one
	p, perr := newPin(ownerID, vp, imageURLs, s.Now().UTC().Truncate(time.Microsecond))
	if perr != nil {
		return nil, perr
	}
	clog := logging.WithFuncName().WithFields(map[string]interface{}{
		cst.LogFieldPinID:   p.ID,
		cst.LogFieldOwnerID: ownerID,
	})
	row := toPinRow(p)
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		clog.WithError(err).Error("error inserting pin")
		return nil, pe.NewPersistence("error saving pin").WithCause(err)
	}
	return p, nil
}

func (s *GormPinStore) Get(ctx context.Context, pinID string) (*md.Pin, *pe.PinErr) {
	row, err := s.get(ctx, pinID)
	if err != nil {
		return nil, err
	}
	return row.toPin(), nil
}

func (s *GormPinStore) get(ctx context.Context, pinID string) (*pinRow, *pe.PinErr) {
	var row pinRow
	if err := s.DB.WithContext(ctx).Where("id = ?", pinID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errPinNotFound(pinID)
		}
		logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).WithError(err).Error("error querying pin")
		return nil, pe.NewPersistence("error getting pin").WithCause(err)
	}
	return &row, nil
}

func (s *GormPinStore) UpdateText(ctx context.Context, pinID, ownerID, text string) (*md.Pin, *pe.PinErr) {
	return s.update(ctx, pinID, ownerID, "text_content", text, func(r *pinRow) { r.TextContent = text })
}

func (s *GormPinStore) SetArchived(ctx context.Context, pinID, ownerID string, archived bool) (*md.Pin, *pe.PinErr) {
	return s.update(ctx, pinID, ownerID, "is_archived", archived, func(r *pinRow) { r.IsArchived = archived })
}

// update is a read-then-write without transaction: a pin deleted in between surfaces as not found
func (s *GormPinStore) update(ctx context.Context, pinID, ownerID, column string, value interface{}, apply func(*pinRow)) (*md.Pin, *pe.PinErr) {
	row, perr := s.get(ctx, pinID)
	if perr != nil {
		return nil, perr
	}
	if row.OwnerID != ownerID {
		return nil, errNotOwner()
	}
	res := s.DB.WithContext(ctx).Model(&pinRow{}).
		Where("id = ? AND owner_id = ?", pinID, ownerID).
		Update(column, value)
	if res.Error != nil {
		logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).WithError(res.Error).Errorf("error updating %s", column)
		return nil, pe.NewPersistence("error updating pin").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errPinNotFound(pinID)
	}
	apply(row)
	return row.toPin(), nil
}

func (s *GormPinStore) Delete(ctx context.Context, pinID, ownerID string) *pe.PinErr {
	row, perr := s.get(ctx, pinID)
	if perr != nil {
		return perr
	}
	if row.OwnerID != ownerID {
		return errNotOwner()
	}
	res := s.DB.WithContext(ctx).Where("id = ? AND owner_id = ?", pinID, ownerID).Delete(&pinRow{})
	if res.Error != nil {
		logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).WithError(res.Error).Error("error deleting pin")
		return pe.NewPersistence("error deleting pin").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return errPinNotFound(pinID)
	}
	return nil
}

func (s *GormPinStore) ListByOwner(ctx context.Context, ownerID string, includeArchived bool) ([]*md.Pin, *pe.PinErr) {
	q := s.DB.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}
	return s.find(q)
}

func (s *GormPinStore) ListAll(ctx context.Context, limit int) ([]*md.Pin, *pe.PinErr) {
	return s.find(s.DB.WithContext(ctx).Limit(effectiveLimit(limit)))
}

func (s *GormPinStore) find(q *gorm.DB) ([]*md.Pin, *pe.PinErr) {
	var rows []pinRow
	if err := q.Order(`created_at DESC, id COLLATE "C" ASC`).Find(&rows).Error; err != nil {
		logging.WithFuncName().WithError(err).Error("error listing pins")
		return nil, pe.NewPersistence("error listing pins").WithCause(err)
	}
	ps := make([]*md.Pin, len(rows))
	for i := range rows {
		ps[i] = rows[i].toPin()
	}
	return ps, nil
}

func (s *GormPinStore) Close() *pe.PinErr {
	return closeGorm(s.DB)
}

func closeGorm(db *gorm.DB) *pe.PinErr {
	sqlDB, err := db.DB()
	if err != nil {
		return pe.NewServiceFailure("error getting database handle").WithCause(err)
	}
	if err := sqlDB.Close(); err != nil {
		return pe.NewServiceFailure("failed closing database connections").WithCause(err)
	}
	return nil
}

func toPinRow(p *md.Pin) *pinRow {
	return &pinRow{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		TextContent:     p.TextContent,
		ImageURLs:       pq.StringArray(p.ImageURLs),
		MusicLink:       nullable(p.MusicLink),
		GifURL:          nullable(p.GifURL),
		Sticker:         nullable(p.Sticker),
		BackgroundColor: nullable(p.BackgroundColor),
		CreatedAt:       p.CreatedAt,
		IsArchived:      p.IsArchived,
	}
}

func (r *pinRow) toPin() *md.Pin {
	urls := []string(r.ImageURLs)
	if urls == nil {
		urls = []string{}
	}
	return &md.Pin{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		TextContent:     r.TextContent,
		ImageURLs:       urls,
		MusicLink:       deref(r.MusicLink),
		GifURL:          deref(r.GifURL),
		Sticker:         deref(r.Sticker),
		BackgroundColor: deref(r.BackgroundColor),
		CreatedAt:       r.CreatedAt.UTC(),
		IsArchived:      r.IsArchived,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GormProfileStore implements ProfileStore on a relational database through gorm
type GormProfileStore struct {
	DB *gorm.DB
}

func (s *GormProfileStore) Create(ctx context.Context, p *md.Profile) *pe.PinErr {
	row := &profileRow{ID: p.ID, Username: p.Username, Email: p.Email}
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pe.NewExisted("profile already existed").WithCause(err)
		}
		return pe.NewPersistence("error saving profile").WithCause(err)
	}
	return nil
}

func (s *GormProfileStore) Get(ctx context.Context, userID string) (*md.Profile, *pe.PinErr) {
	return s.first(ctx, "id = ?", userID)
}

func (s *GormProfileStore) GetByUsername(ctx context.Context, username string) (*md.Profile, *pe.PinErr) {
	return s.first(ctx, "username = ?", username)
}

func (s *GormProfileStore) first(ctx context.Context, cond string, arg string) (*md.Profile, *pe.PinErr) {
	var row profileRow
	if err := s.DB.WithContext(ctx).Where(cond, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pe.NewNotFound("profile not found")
		}
		return nil, pe.NewPersistence("error getting profile").WithCause(err)
	}
	return &md.Profile{ID: row.ID, Username: row.Username, Email: row.Email}, nil
}

func (s *GormProfileStore) GetMany(ctx context.Context, userIDs []string) (map[string]*md.Profile, *pe.PinErr) {
	found := map[string]*md.Profile{}
	ids := uniq(userIDs)
	if len(ids) == 0 {
		return found, nil
	}
	var rows []profileRow
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pe.NewPersistence("error getting profiles").WithCause(err)
	}
	for _, r := range rows {
		found[r.ID] = &md.Profile{ID: r.ID, Username: r.Username, Email: r.Email}
	}
	return found, nil
}

func (s *GormProfileStore) Close() *pe.PinErr {
	return closeGorm(s.DB)
}
