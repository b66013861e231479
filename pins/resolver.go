package pins

import (
	"context"

	"golang.org/x/sync/errgroup"
	"wuyrush.io/pinboard/common/logging"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/stores"
)

const defaultUploadParallelism = 4

// upload is a file persisted in file store
type upload struct {
	ref, url string
}

// AttachmentResolver uploads local files to file store and vends their URLs
type AttachmentResolver struct {
	Files stores.FileStore
	// Parallelism caps concurrent uploads of a single Resolve call
	Parallelism int
}

// Resolve uploads files concurrently and returns URLs of the files uploaded successfully, following the order
// of files. Failed uploads are logged and left out; Resolve itself never fails.
func (r *AttachmentResolver) Resolve(ctx context.Context, files []md.File) []string {
	ups := r.resolve(ctx, files)
	urls := make([]string, len(ups))
	for i, u := range ups {
		urls[i] = u.url
	}
	return urls
}

func (r *AttachmentResolver) resolve(ctx context.Context, files []md.File) []upload {
	if len(files) == 0 {
		return []upload{}
	}
	parallelism := r.Parallelism
	if parallelism <= 0 {
		parallelism = defaultUploadParallelism
	}
	// each upload owns a slot so results keep the order of files regardless of completion order
	slots := make([]*upload, len(files))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i := range files {
		i := i
		f := files[i]
		g.Go(func() error {
			clog := logging.WithFuncName().WithField("filename", f.Name)
			ref := r.Files.Ref(f.Name)
			url, perr := r.Files.Save(ctx, ref, &f)
			if perr != nil {
				clog.WithField("ref", ref).Warn(perr.Trace())
				return nil
			}
			slots[i] = &upload{ref: ref, url: url}
			return nil
		})
	}
	g.Wait()
	ups := make([]upload, 0, len(files))
	for _, u := range slots {
		if u != nil {
			ups = append(ups, *u)
		}
	}
	return ups
}

// discard removes uploads from file store on a best effort basis
func (r *AttachmentResolver) discard(ctx context.Context, ups []upload) {
	for _, u := range ups {
		if perr := r.Files.Delete(ctx, u.ref); perr != nil {
			logging.WithFuncName().WithField("ref", u.ref).Warn(perr.Trace())
		}
	}
}
