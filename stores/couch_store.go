package stores

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-kivik/couchdb/v3"
	"github.com/go-kivik/kivik/v3"
	"wuyrush.io/pinboard/common/logging"
	"wuyrush.io/pinboard/common/retry"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

const (
	maxOptLockAttempt = 3
	// upper bound of documents a single owner listing returns; mango queries default to 25 otherwise
	couchOwnerListMax = 10000
	couchIndexDDoc    = "pinboard"
)

// CouchConfig configures stores backed by CouchDB
type CouchConfig struct {
	DBAddr               string
	PinDBName            string
	ProfileDBName        string
	DBUsername, DBPasswd string
}

// pinDoc is the CouchDB document layout of a pin. CreatedAtNs is kept alongside CreatedAt since mango sorts
// values by JSON collation, and RFC3339 strings with varying fractional digits do not collate chronologically.
type pinDoc struct {
	ID              string    `json:"_id"`
	Rev             string    `json:"_rev,omitempty"`
	OwnerID         string    `json:"ownerId"`
	TextContent     string    `json:"textContent"`
	ImageURLs       []string  `json:"imageUrls"`
	MusicLink       string    `json:"musicLink,omitempty"`
	GifURL          string    `json:"gifUrl,omitempty"`
	Sticker         string    `json:"sticker,omitempty"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	CreatedAtNs     int64     `json:"createdAtNs"`
	IsArchived      bool      `json:"isArchived"`
}

type profileDoc struct {
	ID       string `json:"_id"`
	Rev      string `json:"_rev,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// NewCouchClient connects to CouchDB and ensures the databases in cfg exist along with the indexes stores query by
func NewCouchClient(ctx context.Context, cfg *CouchConfig) (*kivik.Client, error) {
	client, err := kivik.New("couch", cfg.DBAddr)
	if err != nil {
		return nil, err
	}
	if cfg.DBUsername != "" {
		if err := client.Authenticate(ctx, couchdb.BasicAuth(cfg.DBUsername, cfg.DBPasswd)); err != nil {
			return nil, err
		}
	}
	indexes := map[string]map[string]interface{}{
		cfg.PinDBName:     {"ownerId-createdAtNs": []string{"ownerId", "createdAtNs"}, "createdAtNs": []string{"createdAtNs"}},
		cfg.ProfileDBName: {"username": []string{"username"}},
	}
	for name, idx := range indexes {
		exists, err := client.DBExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := client.CreateDB(ctx, name); err != nil && kivik.StatusCode(err) != http.StatusPreconditionFailed {
				return nil, err
			}
		}
		db := client.DB(ctx, name)
		for idxName, fields := range idx {
			if err := db.CreateIndex(ctx, couchIndexDDoc, idxName, map[string]interface{}{"fields": fields}); err != nil {
				return nil, err
			}
		}
	}
	return client, nil
}

// CouchPinStore implements PinStore with CouchDB
type CouchPinStore struct {
	Now func() time.Time

	client *kivik.Client
	db     *kivik.DB
}

func NewCouchPinStore(ctx context.Context, client *kivik.Client, dbName string) *CouchPinStore {
	return &CouchPinStore{Now: time.Now, client: client, db: client.DB(ctx, dbName)}
}

func (s *CouchPinStore) Create(ctx context.Context, ownerID string, vp *md.ValidatedPin, imageURLs []string) (*md.Pin, *pe.PinErr) {
	p, perr := newPin(ownerID, vp, imageURLs, s.Now().UTC())
	if perr != nil {
		return nil, perr
	}
	clog := logging.WithFuncName().WithFields(map[string]interface{}{
		cst.LogFieldPinID:   p.ID,
		cst.LogFieldOwnerID: ownerID,
	})
	if _, err := s.db.Put(ctx, p.ID, toPinDoc(p, "")); err != nil {
		clog.WithError(err).Error("failed saving pin to CouchDB")
		return nil, pe.NewPersistence("error saving pin").WithCause(err)
	}
	return p, nil
}

func (s *CouchPinStore) Get(ctx context.Context, pinID string) (*md.Pin, *pe.PinErr) {
	doc, perr := s.get(ctx, pinID)
	if perr != nil {
		return nil, perr
	}
	return doc.toPin(), nil
}

func (s *CouchPinStore) get(ctx context.Context, pinID string) (*pinDoc, *pe.PinErr) {
	var doc pinDoc
	if err := s.db.Get(ctx, pinID).ScanDoc(&doc); err != nil {
		if kivik.StatusCode(err) == http.StatusNotFound {
			return nil, errPinNotFound(pinID)
		}
		logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).WithError(err).Error("error getting pin from CouchDB")
		return nil, pe.NewPersistence("error getting pin").WithCause(err)
	}
	return &doc, nil
}

func (s *CouchPinStore) UpdateText(ctx context.Context, pinID, ownerID, text string) (*md.Pin, *pe.PinErr) {
	return s.update(ctx, pinID, ownerID, func(d *pinDoc) { d.TextContent = text })
}

func (s *CouchPinStore) SetArchived(ctx context.Context, pinID, ownerID string, archived bool) (*md.Pin, *pe.PinErr) {
	return s.update(ctx, pinID, ownerID, func(d *pinDoc) { d.IsArchived = archived })
}

// update applies f under optimistic locking on document revision, retrying on revision conflicts
func (s *CouchPinStore) update(ctx context.Context, pinID, ownerID string, f func(*pinDoc)) (*md.Pin, *pe.PinErr) {
	var updated *pinDoc
	err := retry.Retry(
		func() error {
			doc, perr := s.get(ctx, pinID)
			if perr != nil {
				return perr
			}
			if doc.OwnerID != ownerID {
				return errNotOwner()
			}
			f(doc)
			rev, err := s.db.Put(ctx, pinID, doc)
			if err != nil {
				return err
			}
			doc.Rev = rev
			updated = doc
			return nil
		},
		retry.WithMaxAttempts(maxOptLockAttempt),
		retry.WithBaseDelay(10*time.Millisecond),
		retry.WithRetryOn(func(err error) bool { return kivik.StatusCode(err) == http.StatusConflict }),
	)
	if err != nil {
		var perr *pe.PinErr
		if errors.As(err, &perr) {
			return nil, perr
		}
		logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).WithError(err).Error("error updating pin in CouchDB")
		return nil, pe.NewPersistence("error updating pin").WithCause(err)
	}
	return updated.toPin(), nil
}

func (s *CouchPinStore) Delete(ctx context.Context, pinID, ownerID string) *pe.PinErr {
	doc, perr := s.get(ctx, pinID)
	if perr != nil {
		return perr
	}
	if doc.OwnerID != ownerID {
		return errNotOwner()
	}
	if _, err := s.db.Delete(ctx, pinID, doc.Rev); err != nil {
		switch kivik.StatusCode(err) {
		case http.StatusNotFound:
			return errPinNotFound(pinID)
		default:
			logging.WithFuncName().WithField(cst.LogFieldPinID, pinID).WithError(err).Error("error deleting pin from CouchDB")
			return pe.NewPersistence("error deleting pin").WithCause(err)
		}
	}
	return nil
}

func (s *CouchPinStore) ListByOwner(ctx context.Context, ownerID string, includeArchived bool) ([]*md.Pin, *pe.PinErr) {
	selector := map[string]interface{}{"ownerId": ownerID}
	if !includeArchived {
		selector["isArchived"] = false
	}
	return s.find(ctx, map[string]interface{}{
		"selector": selector,
		"limit":    couchOwnerListMax,
	})
}

func (s *CouchPinStore) ListAll(ctx context.Context, limit int) ([]*md.Pin, *pe.PinErr) {
	limit = effectiveLimit(limit)
	ps, perr := s.find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{"createdAtNs": map[string]interface{}{"$gte": 0}},
		"sort":     []map[string]string{{"createdAtNs": "desc"}},
		"limit":    limit,
	})
	if perr != nil || len(ps) < limit {
		return ps, perr
	}
	// mango cuts at limit before pins of the oldest instant are ordered by id, so fetch all of that instant
	ties, perr := s.find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{"createdAtNs": ps[len(ps)-1].CreatedAt.UnixNano()},
		"limit":    couchOwnerListMax,
	})
	if perr != nil {
		return nil, perr
	}
	return cutAtLimit(ps, ties, limit), nil
}

func (s *CouchPinStore) find(ctx context.Context, query map[string]interface{}) ([]*md.Pin, *pe.PinErr) {
	errMsg := "error listing pins"
	rows, err := s.db.Find(ctx, query)
	if err != nil {
		logging.WithFuncName().WithError(err).Error(errMsg)
		return nil, pe.NewPersistence(errMsg).WithCause(err)
	}
	defer rows.Close()
	ps := []*md.Pin{}
	for rows.Next() {
		var doc pinDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, pe.NewPersistence(errMsg).WithCause(err)
		}
		ps = append(ps, doc.toPin())
	}
	if err := rows.Err(); err != nil {
		return nil, pe.NewPersistence(errMsg).WithCause(err)
	}
	// mango sorts by one key only; ties on creation time still need ordering by id
	sortPins(ps)
	return ps, nil
}

func (s *CouchPinStore) Close() *pe.PinErr {
	return closeCouch(s.client)
}

func closeCouch(c *kivik.Client) *pe.PinErr {
	if err := c.Close(context.Background()); err != nil {
		return pe.NewServiceFailure("failed closing CouchDB client").WithCause(err)
	}
	return nil
}

func toPinDoc(p *md.Pin, rev string) *pinDoc {
	return &pinDoc{
		ID:              p.ID,
		Rev:             rev,
		OwnerID:         p.OwnerID,
		TextContent:     p.TextContent,
		ImageURLs:       p.ImageURLs,
		MusicLink:       p.MusicLink,
		GifURL:          p.GifURL,
		Sticker:         p.Sticker,
		BackgroundColor: p.BackgroundColor,
		CreatedAt:       p.CreatedAt,
		CreatedAtNs:     p.CreatedAt.UnixNano(),
		IsArchived:      p.IsArchived,
	}
}

func (d *pinDoc) toPin() *md.Pin {
	urls := d.ImageURLs
	if urls == nil {
		urls = []string{}
	}
	return &md.Pin{
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		TextContent:     d.TextContent,
		ImageURLs:       urls,
		MusicLink:       d.MusicLink,
		GifURL:          d.GifURL,
		Sticker:         d.Sticker,
		BackgroundColor: d.BackgroundColor,
		CreatedAt:       time.Unix(0, d.CreatedAtNs).UTC(),
		IsArchived:      d.IsArchived,
	}
}

// CouchProfileStore implements ProfileStore with CouchDB. Profile documents are keyed by user id
type CouchProfileStore struct {
	client *kivik.Client
	db     *kivik.DB
}

func NewCouchProfileStore(ctx context.Context, client *kivik.Client, dbName string) *CouchProfileStore {
	return &CouchProfileStore{client: client, db: client.DB(ctx, dbName)}
}

func (s *CouchProfileStore) Create(ctx context.Context, p *md.Profile) *pe.PinErr {
	if _, perr := s.GetByUsername(ctx, p.Username); perr == nil {
		return pe.NewExisted("username " + p.Username + " is already taken")
	} else if perr.Code != pe.ErrCodeNotFound {
		return perr
	}
	if _, err := s.db.Put(ctx, p.ID, &profileDoc{ID: p.ID, Username: p.Username, Email: p.Email}); err != nil {
		if kivik.StatusCode(err) == http.StatusConflict {
			return pe.NewExisted("profile " + p.ID + " already existed").WithCause(err)
		}
		return pe.NewPersistence("error saving profile").WithCause(err)
	}
	return nil
}

func (s *CouchProfileStore) Get(ctx context.Context, userID string) (*md.Profile, *pe.PinErr) {
	var doc profileDoc
	if err := s.db.Get(ctx, userID).ScanDoc(&doc); err != nil {
		if kivik.StatusCode(err) == http.StatusNotFound {
			return nil, pe.NewNotFound("profile not found")
		}
		return nil, pe.NewPersistence("error getting profile").WithCause(err)
	}
	return doc.toProfile(), nil
}

func (s *CouchProfileStore) GetByUsername(ctx context.Context, username string) (*md.Profile, *pe.PinErr) {
	ps, perr := s.find(ctx, map[string]interface{}{"username": username}, 1)
	if perr != nil {
		return nil, perr
	}
	if len(ps) == 0 {
		return nil, pe.NewNotFound("profile " + username + " not found")
	}
	return ps[0], nil
}

func (s *CouchProfileStore) GetMany(ctx context.Context, userIDs []string) (map[string]*md.Profile, *pe.PinErr) {
	found := map[string]*md.Profile{}
	ids := uniq(userIDs)
	if len(ids) == 0 {
		return found, nil
	}
	ps, perr := s.find(ctx, map[string]interface{}{"_id": map[string]interface{}{"$in": ids}}, len(ids))
	if perr != nil {
		return nil, perr
	}
	for _, p := range ps {
		found[p.ID] = p
	}
	return found, nil
}

func (s *CouchProfileStore) find(ctx context.Context, selector map[string]interface{}, limit int) ([]*md.Profile, *pe.PinErr) {
	errMsg := "error querying profiles"
	rows, err := s.db.Find(ctx, map[string]interface{}{"selector": selector, "limit": limit})
	if err != nil {
		return nil, pe.NewPersistence(errMsg).WithCause(err)
	}
	defer rows.Close()
	var ps []*md.Profile
	for rows.Next() {
		var doc profileDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, pe.NewPersistence(errMsg).WithCause(err)
		}
		ps = append(ps, doc.toProfile())
	}
	if err := rows.Err(); err != nil {
		return nil, pe.NewPersistence(errMsg).WithCause(err)
	}
	return ps, nil
}

func (s *CouchProfileStore) Close() *pe.PinErr {
	return closeCouch(s.client)
}

func (d *profileDoc) toProfile() *md.Profile {
	return &md.Profile{ID: d.ID, Username: d.Username, Email: d.Email}
}
