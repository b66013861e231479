package pins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

func TestAttachmentResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	tcs := []struct {
		name     string
		files    []md.File
		setup    func(m *mockFileStore)
		expected []string
	}{
		{
			name:     "NoFiles",
			files:    nil,
			setup:    func(m *mockFileStore) {},
			expected: []string{},
		},
		{
			name:  "AllUploaded",
			files: []md.File{file("a.png"), file("b.png")},
			setup: func(m *mockFileStore) {
				m.On("Save", "pin-images/a.png").Return("https://cdn/a.png", nil)
				m.On("Save", "pin-images/b.png").Return("https://cdn/b.png", nil)
			},
			expected: []string{"https://cdn/a.png", "https://cdn/b.png"},
		},
		{
			name:  "FailedUploadSkipped",
			files: []md.File{file("a.png"), file("b.png")},
			setup: func(m *mockFileStore) {
				m.On("Save", "pin-images/a.png").Return("https://cdn/a.png", nil)
				m.On("Save", "pin-images/b.png").Return("", pe.NewServiceFailure("bucket unavailable"))
			},
			expected: []string{"https://cdn/a.png"},
		},
		{
			name:  "AllFailed",
			files: []md.File{file("a.png"), file("b.png")},
			setup: func(m *mockFileStore) {
				m.On("Save", "pin-images/a.png").Return("", pe.NewServiceFailure("bucket unavailable"))
				m.On("Save", "pin-images/b.png").Return("", pe.NewServiceFailure("bucket unavailable"))
			},
			expected: []string{},
		},
		{
			name:  "OrderKeptRegardlessOfCompletion",
			files: []md.File{file("a.png"), file("b.png"), file("c.png"), file("d.png")},
			setup: func(m *mockFileStore) {
				// a finishes last, c fails
				m.On("Save", "pin-images/a.png").After(50*time.Millisecond).Return("https://cdn/a.png", nil)
				m.On("Save", "pin-images/b.png").Return("https://cdn/b.png", nil)
				m.On("Save", "pin-images/c.png").Return("", pe.NewServiceFailure("timeout"))
				m.On("Save", "pin-images/d.png").After(10*time.Millisecond).Return("https://cdn/d.png", nil)
			},
			expected: []string{"https://cdn/a.png", "https://cdn/b.png", "https://cdn/d.png"},
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			m := &mockFileStore{}
			c.setup(m)
			r := &AttachmentResolver{Files: m, Parallelism: 4}
			assert.Equal(t, c.expected, r.Resolve(ctx, c.files))
			m.AssertExpectations(t)
		})
	}
}

func TestAttachmentResolver_StableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	m := &mockFileStore{}
	m.On("Save", "pin-images/a.png").Return("https://cdn/a.png", nil)
	m.On("Save", "pin-images/b.png").After(5*time.Millisecond).Return("https://cdn/b.png", nil)
	m.On("Save", "pin-images/c.png").Return("https://cdn/c.png", nil)
	r := &AttachmentResolver{Files: m, Parallelism: 2}
	files := func() []md.File { return []md.File{file("a.png"), file("b.png"), file("c.png")} }

	first := r.Resolve(ctx, files())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Resolve(ctx, files()))
	}
}
