package notebook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/checksum"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/tree"
)

// ImageRef describes a stored image and the markdown snippet that embeds it
// from the owning note.
type ImageRef struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
}

// CleanupReport summarizes an image cleanup pass.
type CleanupReport struct {
	DryRun           bool     `json:"dryRun"`
	TotalImages      int      `json:"totalImages"`
	ReferencedImages int      `json:"referencedImages"`
	UnusedImages     int      `json:"unusedImages"`
	CandidatePaths   []string `json:"candidatePaths"`
	RemovedPaths     []string `json:"removedPaths"`
}

// contentTypeExt maps sniffed or declared content types to an extension.
var contentTypeExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// PasteImage stores pasted image bytes next to the note (or in the configured
// image folder) and returns the markdown needed to embed it.
func (s *Service) PasteImage(_ context.Context, notePath, filename, declaredType string, data []byte) (*ImageRef, error) {
	notePath, err := cleanPath(notePath)
	if err != nil {
		return nil, err
	}
	if e, err := s.store.Stat(notePath); err != nil {
		return nil, mapStoreErr(err)
	} else if e.Dir || !tree.IsNotePath(notePath) {
		return nil, fmt.Errorf("notebook: %w: %q is not a note", apperr.ErrValidation, notePath)
	}

	cfg := s.settings.Current()
	if int64(len(data)) > cfg.ImageMaxPasteBytes {
		return nil, fmt.Errorf("notebook: %w: image is %d bytes, limit %d",
			apperr.ErrTooLarge, len(data), cfg.ImageMaxPasteBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("notebook: %w: empty image", apperr.ErrValidation)
	}

	ext := imageExt(filename, declaredType, data)
	if ext == "" {
		return nil, fmt.Errorf("notebook: %w: unsupported image type", apperr.ErrValidation)
	}

	dir := cfg.ImageStoragePath
	if dir == "" {
		dir = path.Join(noteDir(notePath), "Images")
	}
	stem := imageStem(filename)

	// Name by content so pasting the same screenshot twice reuses the file.
	stem = stem + "-" + checksum.Short(data)
	target := path.Join(dir, stem+ext)
	if existing, err := s.store.Read(target); err == nil {
		if checksum.Sum(existing) != checksum.Sum(data) {
			target, err = s.freeImagePath(dir, stem, ext)
			if err != nil {
				return nil, err
			}
		}
	}
	if _, err := s.store.Stat(target); err != nil {
		if err := s.store.Create(target, data); err != nil {
			return nil, mapStoreErr(err)
		}
	}

	return &ImageRef{
		Path:     target,
		Name:     path.Base(target),
		Markdown: fmt.Sprintf("![%s](%s)", imageStem(filename), relativeTo(noteDir(notePath), target)),
	}, nil
}

// CleanupImages finds images no note references. With dryRun it only reports;
// otherwise the unreferenced images are deleted.
func (s *Service) CleanupImages(_ context.Context, dryRun bool) (*CleanupReport, error) {
	var images []string
	var notes []notestore.Entry
	err := s.store.Walk(func(e notestore.Entry) error {
		if e.Dir {
			return nil
		}
		switch {
		case tree.IsImagePath(e.Path):
			images = append(images, e.Path)
		case tree.IsNotePath(e.Path):
			notes = append(notes, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool)
	for _, n := range notes {
		data, err := s.store.Read(n.Path)
		if err != nil {
			continue // deleted mid-scan
		}
		for _, ref := range imageRefs(string(data)) {
			for _, candidate := range resolveRef(noteDir(n.Path), ref) {
				referenced[candidate] = true
			}
		}
	}

	report := &CleanupReport{DryRun: dryRun, TotalImages: len(images)}
	for _, img := range images {
		if referenced[img] {
			report.ReferencedImages++
			continue
		}
		report.CandidatePaths = append(report.CandidatePaths, img)
	}
	sort.Strings(report.CandidatePaths)
	report.UnusedImages = len(report.CandidatePaths)

	if dryRun {
		return report, nil
	}
	for _, img := range report.CandidatePaths {
		if err := s.store.Delete(img); err != nil {
			s.logger.Warn("image cleanup delete failed",
				slog.String("path", img),
				slog.String("error", err.Error()))
			continue
		}
		report.RemovedPaths = append(report.RemovedPaths, img)
	}
	s.autoCommit("Clean up", "unused images")
	return report, nil
}

var (
	mdImagePattern   = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	htmlImagePattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)
)

// imageRefs extracts the raw link targets of markdown and inline HTML images.
func imageRefs(content string) []string {
	var refs []string
	for _, m := range mdImagePattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, m[1])
	}
	for _, m := range htmlImagePattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, m[1])
	}
	return refs
}

// resolveRef turns one link target into the store paths it could point at,
// both relative to the note's folder and relative to the notebook root.
// Remote and data URLs resolve to nothing.
func resolveRef(dir, ref string) []string {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return nil
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	ref = strings.TrimPrefix(ref, "/files/")
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" {
		return nil
	}
	fromNote := path.Clean(path.Join(dir, ref))
	fromRoot := path.Clean(ref)
	if fromNote == fromRoot {
		return []string{fromRoot}
	}
	return []string{fromNote, fromRoot}
}

// noteDir returns the folder holding the note, "" at the root.
func noteDir(notePath string) string {
	dir := path.Dir(notePath)
	if dir == "." {
		return ""
	}
	return dir
}

// relativeTo rewrites target relative to dir for use inside a note.
func relativeTo(dir, target string) string {
	if dir == "" {
		return target
	}
	if strings.HasPrefix(target, dir+"/") {
		return target[len(dir)+1:]
	}
	ups := strings.Count(dir, "/") + 1
	return strings.Repeat("../", ups) + target
}

// imageExt picks the extension for a pasted image from its filename, the
// declared content type, or the sniffed bytes, in that order.
func imageExt(filename, declaredType string, data []byte) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && tree.IsImagePath(filename) {
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	if ext, ok := contentTypeExt[normalizeContentType(declaredType)]; ok {
		return ext
	}
	if ext, ok := contentTypeExt[normalizeContentType(http.DetectContentType(data))]; ok {
		return ext
	}
	return ""
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// imageStem sanitizes the client filename into a safe base name.
func imageStem(filename string) string {
	stem := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "pasted-image"
	}
	return out
}

// freeImagePath finds an unused path for the image, numbering duplicates.
func (s *Service) freeImagePath(dir, stem, ext string) (string, error) {
	for i := 1; i <= 1000; i++ {
		name := stem + ext
		if i > 1 {
			name = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		candidate := path.Join(dir, name)
		if _, err := s.store.Stat(candidate); err != nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("notebook: no free name for %s%s in %s", stem, ext, dir)
}
