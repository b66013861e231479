package pins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

func TestEditor_EditThenDeleteAfterWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	ps, _ := newMemStores(t, clock)
	e := &Editor{Pins: ps, Window: NewEditWindow(24 * time.Hour), Clock: clock.Now}

	p, err := ps.Create(ctx, alice.ID, &md.ValidatedPin{TextContent: "hello"}, nil)
	require.Nil(t, err)

	clock.Set(t0.Add(time.Hour))
	edited, err := e.EditText(ctx, p.ID, alice.ID, "hello world")
	require.Nil(t, err)
	assert.Equal(t, "hello world", edited.TextContent)

	clock.Set(t0.Add(25 * time.Hour))
	err = e.Delete(ctx, p.ID, alice.ID)
	require.NotNil(t, err)
	assert.Equal(t, pe.ErrCodeForbidden, err.Code)

	got, err := ps.Get(ctx, p.ID)
	require.Nil(t, err)
	assert.Equal(t, "hello world", got.TextContent)
}

func TestEditor_EditText(t *testing.T) {
	ctx := context.Background()
	tcs := []struct {
		name       string
		age        time.Duration
		userID     string
		text       string
		expErrCode pe.ErrCode
	}{
		{name: "Owner", age: time.Minute, userID: alice.ID, text: "edited"},
		{name: "OwnerLastSecond", age: 24*time.Hour - time.Second, userID: alice.ID, text: "edited"},
		{name: "OwnerAtBoundary", age: 24 * time.Hour, userID: alice.ID, text: "edited", expErrCode: pe.ErrCodeForbidden},
		{name: "NonOwner", age: time.Minute, userID: bob.ID, text: "edited", expErrCode: pe.ErrCodeForbidden},
		{name: "Anonymous", age: time.Minute, userID: "", text: "edited", expErrCode: pe.ErrCodeUnauthorized},
		{name: "BlankText", age: time.Minute, userID: alice.ID, text: "  ", expErrCode: pe.ErrCodeEmptyContent},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			clock := &fakeClock{now: t0}
			ps, _ := newMemStores(t, clock)
			e := &Editor{Pins: ps, Window: NewEditWindow(24 * time.Hour), Clock: clock.Now}
			p, err := ps.Create(ctx, alice.ID, &md.ValidatedPin{TextContent: "original"}, nil)
			require.Nil(t, err)
			clock.Set(t0.Add(c.age))

			edited, err := e.EditText(ctx, p.ID, c.userID, c.text)
			got, _ := ps.Get(ctx, p.ID)
			if c.expErrCode != "" {
				require.NotNil(t, err)
				assert.Equal(t, c.expErrCode, err.Code)
				assert.Equal(t, "original", got.TextContent, "rejected edits must leave text unchanged")
				return
			}
			require.Nil(t, err)
			assert.Equal(t, c.text, edited.TextContent)
			assert.Equal(t, c.text, got.TextContent)
			assert.True(t, t0.Equal(got.CreatedAt))
		})
	}
}

func TestEditor_Delete(t *testing.T) {
	ctx := context.Background()
	tcs := []struct {
		name       string
		age        time.Duration
		userID     string
		pinID      string
		expErrCode pe.ErrCode
	}{
		{name: "Owner", age: time.Hour, userID: alice.ID},
		{name: "OwnerAtBoundary", age: 24 * time.Hour, userID: alice.ID, expErrCode: pe.ErrCodeForbidden},
		{name: "NonOwner", age: time.Hour, userID: bob.ID, expErrCode: pe.ErrCodeForbidden},
		{name: "Absent", age: time.Hour, userID: alice.ID, pinID: "absent", expErrCode: pe.ErrCodeNotFound},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			clock := &fakeClock{now: t0}
			ps, _ := newMemStores(t, clock)
			e := &Editor{Pins: ps, Window: NewEditWindow(24 * time.Hour), Clock: clock.Now}
			p, err := ps.Create(ctx, alice.ID, &md.ValidatedPin{TextContent: "original"}, nil)
			require.Nil(t, err)
			clock.Set(t0.Add(c.age))
			pinID := p.ID
			if c.pinID != "" {
				pinID = c.pinID
			}

			err = e.Delete(ctx, pinID, c.userID)
			_, gerr := ps.Get(ctx, p.ID)
			if c.expErrCode != "" {
				require.NotNil(t, err)
				assert.Equal(t, c.expErrCode, err.Code)
				assert.Nil(t, gerr, "pin must survive rejected deletion")
				return
			}
			require.Nil(t, err)
			require.NotNil(t, gerr)
			assert.Equal(t, pe.ErrCodeNotFound, gerr.Code)
		})
	}
}

func TestEditor_SetArchivedIgnoresWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	ps, _ := newMemStores(t, clock)
	e := &Editor{Pins: ps, Window: NewEditWindow(24 * time.Hour), Clock: clock.Now}
	p, err := ps.Create(ctx, alice.ID, &md.ValidatedPin{TextContent: "hello"}, nil)
	require.Nil(t, err)
	clock.Set(t0.Add(72 * time.Hour))

	archived, err := e.SetArchived(ctx, p.ID, alice.ID, true)
	require.Nil(t, err)
	assert.True(t, archived.IsArchived)

	_, err = e.SetArchived(ctx, p.ID, bob.ID, false)
	require.NotNil(t, err)
	assert.Equal(t, pe.ErrCodeForbidden, err.Code)

	_, err = e.SetArchived(ctx, p.ID, "", false)
	require.NotNil(t, err)
	assert.Equal(t, pe.ErrCodeUnauthorized, err.Code)
}
