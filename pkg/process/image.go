package process

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// ImageDir is the default images directory name next to the assembled document
const ImageDir = "images"

const defaultImageParallelism = 4

// ImageDownloader localizes the images of converted pages. Each image URL is downloaded
// at most once per downloader, so pages sharing a logo or diagram reuse the saved file.
type ImageDownloader struct {
	fetcher  *fetch.Fetcher
	reqCfg   fetch.RequestConfig
	parallel int
	log      *logrus.Entry

	mu    sync.Mutex
	saved map[string]models.ImageData // Absolute URL -> saved file
}

// NewImageDownloader creates an ImageDownloader running at most parallel downloads per page
func NewImageDownloader(fetcher *fetch.Fetcher, reqCfg fetch.RequestConfig, parallel int, log *logrus.Entry) *ImageDownloader {
	if parallel <= 0 {
		parallel = defaultImageParallelism
	}
	return &ImageDownloader{
		fetcher:  fetcher,
		reqCfg:   reqCfg,
		parallel: parallel,
		log:      log.WithField("component", "images"),
		saved:    make(map[string]models.ImageData),
	}
}

// imageRef is one <img> element scheduled for localization
type imageRef struct {
	el      *goquery.Selection
	abs     string
	caption string
}

// Process downloads the images referenced in content into dir and points their src at the
// saved files, relative to dir's parent. Images that cannot be downloaded keep their remote
// src; their errors are returned but never fail the page. Returns the number localized.
func (d *ImageDownloader) Process(ctx context.Context, content *goquery.Selection, pageURL *url.URL, dir string) (int, []error) {
	var refs []imageRef
	content.Find("img").Each(func(_ int, el *goquery.Selection) {
		src := strings.TrimSpace(el.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		u, err := pageURL.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		refs = append(refs, imageRef{el: el, abs: u.String(), caption: imageCaption(el)})
	})
	if len(refs) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, []error{fmt.Errorf("%w: creating image directory '%s': %w", utils.ErrFilesystem, dir, err)}
	}

	var (
		errMu sync.Mutex
		errs  []error
		g     errgroup.Group
		seen  = make(map[string]struct{})
	)
	g.SetLimit(d.parallel)
	for _, ref := range refs {
		if _, dup := seen[ref.abs]; dup {
			continue
		}
		seen[ref.abs] = struct{}{}
		if _, ok := d.lookup(ref.abs); ok {
			continue
		}

		abs, caption := ref.abs, ref.caption
		g.Go(func() error {
			if err := d.download(ctx, abs, caption, dir); err != nil {
				d.log.WithField("img_url", abs).Warnf("Image download failed: %v", err)
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	prefix := filepath.Base(dir)
	localized := 0
	for _, ref := range refs {
		img, ok := d.lookup(ref.abs)
		if !ok {
			continue
		}
		ref.el.SetAttr("src", path.Join(prefix, img.LocalPath))
		if ref.caption != "" {
			ref.el.SetAttr("alt", ref.caption)
		}
		localized++
	}
	return localized, errs
}

func (d *ImageDownloader) lookup(abs string) (models.ImageData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.saved[abs]
	return img, ok
}

func (d *ImageDownloader) download(ctx context.Context, abs, caption, dir string) error {
	res, err := d.fetcher.Fetch(ctx, abs, d.reqCfg)
	if err != nil {
		return err
	}

	contentType := res.Header.Get("Content-Type")
	if mediaType, _, _ := mime.ParseMediaType(contentType); contentType != "" && !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: '%s' is %s, not an image", utils.ErrParsing, abs, mediaType)
	}

	u, _ := url.Parse(abs)
	name, err := localImageFilename(u, abs, contentType)
	if err != nil {
		return fmt.Errorf("%w: naming image '%s': %w", utils.ErrParsing, abs, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), res.Body, 0644); err != nil {
		return fmt.Errorf("%w: saving image '%s': %w", utils.ErrFilesystem, name, err)
	}

	d.mu.Lock()
	d.saved[abs] = models.ImageData{OriginalURL: abs, LocalPath: name, Caption: caption}
	d.mu.Unlock()
	d.log.WithField("img_url", abs).Debugf("Saved image %s (%d bytes)", name, len(res.Body))
	return nil
}

// imageCaption prefers an enclosing figure's figcaption over the alt text
func imageCaption(el *goquery.Selection) string {
	if fig := el.Closest("figure"); fig.Length() > 0 {
		if c := strings.TrimSpace(fig.Find("figcaption").First().Text()); c != "" {
			return c
		}
	}
	return strings.TrimSpace(el.AttrOr("alt", ""))
}

var preferredImageExts = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

// localImageFilename builds "<sanitized base>_<url hash><ext>". The extension comes from
// the Content-Type when it is known, otherwise from the URL path.
func localImageFilename(u *url.URL, abs, contentType string) (string, error) {
	urlExt := path.Ext(u.Path)
	hash := utils.ContentHash(abs)

	base := utils.SanitizeFilename(strings.TrimSuffix(path.Base(u.Path), urlExt))
	if base == "untitled" || base == "." {
		base = "image"
	}

	ext := urlExt
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if preferred, ok := preferredImageExts[mediaType]; ok {
			ext = preferred
		} else if ext == "" {
			if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				ext = exts[0]
			}
		}
	}
	if ext == "" {
		return "", fmt.Errorf("cannot determine file extension (Content-Type %q, no URL extension)", contentType)
	}

	return fmt.Sprintf("%s_%s%s", base, hash[:8], strings.ToLower(ext)), nil
}
