package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"innovation-review-api/models"
	"innovation-review-api/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var errPathEscape = errors.New("resolved path escapes its storage root")

// sniffLength is how many leading bytes are inspected to classify an upload.
const sniffLength = 3072

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

func UploadFromFileHeader(fh *multipart.FileHeader) Upload {
	return Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// StoredFile is a durably written file.
type StoredFile struct {
	Path     string `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Version  int    `json:"version,omitempty"`
}

// FileExchangeConfig locates the storage roots.
type FileExchangeConfig struct {
	Root               string
	StaticTemplateFile string
	TemplateMasterFile string
	Criteria           models.CriteriaCatalog
	Render             DocxRenderer
}

// FileExchangeManager owns every path the review workflow writes: templates, judge
// submissions and idea final summaries. Paths are derived from ids and version numbers only,
// and every resolved path is checked against its root.
type FileExchangeManager struct {
	submissionsRoot string
	summariesRoot   string
	perIdeaRoot     string

	static    *StaticTemplate
	perIdea   *PerIdeaTemplate
	generated *GeneratedTemplate

	locks keyedMutex
	now   func() time.Time
}

func NewFileExchangeManager(cfg FileExchangeConfig) (*FileExchangeManager, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid upload root: %w", err)
	}
	templatesRoot := filepath.Join(root, "templates")

	staticFile := cfg.StaticTemplateFile
	if staticFile == "" {
		staticFile = filepath.Join(templatesRoot, "static", "evaluation_template.docx")
	}
	master := cfg.TemplateMasterFile
	if master == "" {
		master = filepath.Join(templatesRoot, "master", "evaluation_master.docx")
	}
	criteria := cfg.Criteria
	if criteria == nil {
		criteria = models.DefaultCriteria()
	}
	render := cfg.Render
	if render == nil {
		render = RenderDocx
	}

	m := &FileExchangeManager{
		submissionsRoot: filepath.Join(root, "submissions"),
		summariesRoot:   filepath.Join(root, "final-summaries"),
		perIdeaRoot:     filepath.Join(templatesRoot, "ideas"),
		now:             time.Now,
	}
	m.static = &StaticTemplate{dir: filepath.Dir(staticFile), filename: filepath.Base(staticFile)}
	m.perIdea = &PerIdeaTemplate{root: m.perIdeaRoot}
	m.generated = &GeneratedTemplate{
		root:     filepath.Join(templatesRoot, "generated"),
		master:   master,
		criteria: criteria,
		render:   render,
	}
	return m, nil
}

// resolveWithin joins elems under base and refuses anything that lands outside base.
func resolveWithin(base string, elems ...string) (string, error) {
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	target := filepath.Join(append([]string{baseAbs}, elems...)...)
	return ensureWithin(baseAbs, target)
}

func ensureWithin(base, target string) (string, error) {
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", errPathEscape, target)
	}
	return targetAbs, nil
}

func ideaSegment(id uint) string  { return fmt.Sprintf("idea_%d", id) }
func judgeSegment(id uint) string { return fmt.Sprintf("judge_%d", id) }
func versionSegment(v int) string { return fmt.Sprintf("v%d", v) }

// SubmissionDir is where version v of an assignment's submission lives.
func (m *FileExchangeManager) SubmissionDir(ideaID, judgeID uint, version int) (string, error) {
	if version < 1 {
		return "", ValidationError("submission version must be >= 1", nil)
	}
	return resolveWithin(m.submissionsRoot, ideaSegment(ideaID), judgeSegment(judgeID), versionSegment(version))
}

// submissionPolicy lists the extensions a judge may upload.
func submissionPolicy(settings models.Settings) []string {
	allowed := []string{".docx"}
	if settings.AllowPDFSubmission {
		allowed = append(allowed, ".pdf")
	}
	return allowed
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// checkUpload validates name and declared size. Nothing is read or written.
func checkUpload(up Upload, allowed []string, maxSize int64) (string, error) {
	name := utils.SanitizeFilename(up.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !containsString(allowed, ext) {
		return "", InvalidFileType(ext, allowed)
	}
	if up.Size > maxSize {
		return "", FileTooLarge(maxSize)
	}
	if up.Size == 0 {
		return "", ValidationError("file is empty", map[string]string{"file": "empty"})
	}
	return name, nil
}

// detectMime checks that the leading bytes match the extension and returns the mime type.
func detectMime(ext string, head []byte) (string, error) {
	detected := mimetype.Detect(head)
	want := models.MimeForExtension(ext)
	accept := []string{want}
	if ext == ".docx" {
		// a docx is a zip container; small files may not expose the Office entries up front
		accept = append(accept, models.MimeZip)
	}
	for t := detected; t != nil; t = t.Parent() {
		for _, a := range accept {
			if t.Is(a) {
				return want, nil
			}
		}
	}
	return "", InvalidFileType(ext, []string{want})
}

// readHead returns the first bytes of src and a reader that replays them.
func readHead(src io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	head = head[:n]
	return head, io.MultiReader(bytes.NewReader(head), src), nil
}

// writeFileAtomic streams src into dir/name through a temp file, flushes it and renames it
// into place. At most limit bytes are accepted.
func writeFileAtomic(dir, name string, src io.Reader, limit int64) (int64, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create directory: %w", err)
	}
	final, err := resolveWithin(dir, name)
	if err != nil {
		return 0, "", err
	}

	tmp := filepath.Join(dir, ".upload-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	hash, err := blake2b.New256(nil)
	if err != nil {
		cleanup()
		return 0, "", err
	}

	n, err := io.Copy(io.MultiWriter(f, hash), io.LimitReader(src, limit+1))
	if err != nil {
		cleanup()
		return 0, "", fmt.Errorf("write file: %w", err)
	}
	if n > limit {
		cleanup()
		return 0, "", FileTooLarge(limit)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return 0, "", fmt.Errorf("flush file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("move file into place: %w", err)
	}
	syncDir(dir)

	return n, hex.EncodeToString(hash.Sum(nil)), nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// storeUpload validates, sniffs and writes an upload into dir.
func (m *FileExchangeManager) storeUpload(dir string, up Upload, allowed []string, maxSize int64) (StoredFile, error) {
	name, err := checkUpload(up, allowed, maxSize)
	if err != nil {
		return StoredFile{}, err
	}

	rc, err := up.Open()
	if err != nil {
		return StoredFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	head, body, err := readHead(rc)
	if err != nil {
		return StoredFile{}, fmt.Errorf("read upload: %w", err)
	}
	mimeType, err := detectMime(filepath.Ext(name), head)
	if err != nil {
		return StoredFile{}, err
	}

	size, checksum, err := writeFileAtomic(dir, name, body, maxSize)
	if err != nil {
		return StoredFile{}, err
	}
	return StoredFile{
		Path:     filepath.Join(dir, name),
		Filename: name,
		MimeType: mimeType,
		Size:     size,
		Checksum: checksum,
	}, nil
}

// LockAssignment serializes uploads for one assignment within this process.
func (m *FileExchangeManager) LockAssignment(id uint) func() {
	return m.locks.Lock(id)
}

// StoreSubmission writes the next submission version for a. The caller must hold
// LockAssignment(a.ID) and attach the result with AssignmentStateMachine.RecordSubmission.
func (m *FileExchangeManager) StoreSubmission(ctx context.Context, a *models.Assignment, up Upload, settings models.Settings) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	allowed := submissionPolicy(settings)
	if _, err := checkUpload(up, allowed, settings.MaxEvaluationFileSize); err != nil {
		return StoredFile{}, err
	}

	version := a.SubmissionVersion + 1
	dir, err := m.SubmissionDir(a.IdeaID, a.JudgeID, version)
	if err != nil {
		return StoredFile{}, err
	}
	// The version directory is claimed, never cleared: another instance may own it.
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create submission directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return StoredFile{}, AssignmentConflict(
				fmt.Sprintf("submission version %d is already being stored", version), err)
		}
		return StoredFile{}, fmt.Errorf("claim version directory: %w", err)
	}

	stored, err := m.storeUpload(dir, up, allowed, settings.MaxEvaluationFileSize)
	if err != nil {
		os.Remove(dir)
		return StoredFile{}, err
	}
	stored.Version = version
	return stored, nil
}

// DiscardSubmission removes a version written by StoreSubmission that could not be
// attached. Only that file and its then-empty directory are removed.
func (m *FileExchangeManager) DiscardSubmission(a *models.Assignment, stored StoredFile) {
	dir, err := m.SubmissionDir(a.IdeaID, a.JudgeID, stored.Version)
	if err != nil {
		return
	}
	path, err := ensureWithin(dir, stored.Path)
	if err != nil {
		return
	}
	os.Remove(path)
	os.Remove(dir)
}

// SubmissionFile returns the path and display name of version (0 = latest).
func (m *FileExchangeManager) SubmissionFile(a *models.Assignment, version int) (string, string, error) {
	if !a.HasSubmission() {
		return "", "", NotFound("no submission uploaded yet")
	}
	if version == 0 || version == a.SubmissionVersion {
		path, err := ensureWithin(m.submissionsRoot, a.SubmissionPath)
		if err != nil {
			return "", "", err
		}
		return path, a.SubmissionFilename, nil
	}
	if version < 0 || version > a.SubmissionVersion {
		return "", "", NotFound(fmt.Sprintf("submission version %d not found", version))
	}

	dir, err := m.SubmissionDir(a.IdeaID, a.JudgeID, version)
	if err != nil {
		return "", "", err
	}
	name, err := singleVisibleFile(dir)
	if err != nil {
		return "", "", NotFound(fmt.Sprintf("submission version %d not found", version))
	}
	return filepath.Join(dir, name), name, nil
}

// RemoveSubmissions deletes every stored version of a deleted assignment.
func (m *FileExchangeManager) RemoveSubmissions(ideaID, judgeID uint) error {
	dir, err := resolveWithin(m.submissionsRoot, ideaSegment(ideaID), judgeSegment(judgeID))
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// visibleFiles lists regular files in dir, skipping temp files, newest first.
func visibleFiles(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := entries[:0]
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, e)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		ii, _ := files[i].Info()
		jj, _ := files[j].Info()
		if ii == nil || jj == nil {
			return files[i].Name() > files[j].Name()
		}
		return ii.ModTime().After(jj.ModTime())
	})
	return files, nil
}

func singleVisibleFile(dir string) (string, error) {
	files, err := visibleFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", os.ErrNotExist
	}
	return files[0].Name(), nil
}

// StoreFinalSummary writes a new idea-level summary next to the current one. The caller
// swaps the idea row to the returned file and then calls RemoveFinalSummary on the old path.
func (m *FileExchangeManager) StoreFinalSummary(ctx context.Context, ideaID uint, up Upload, settings models.Settings) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	dir, err := resolveWithin(m.summariesRoot, ideaSegment(ideaID))
	if err != nil {
		return StoredFile{}, err
	}
	allowed := []string{".docx", ".pdf"}
	if _, err := checkUpload(up, allowed, settings.MaxEvaluationFileSize); err != nil {
		return StoredFile{}, err
	}

	// A timestamped subdirectory keeps the new file apart from the one it replaces.
	sub := fmt.Sprintf("%d", m.now().UnixNano())
	return m.storeUpload(filepath.Join(dir, sub), up, allowed, settings.MaxEvaluationFileSize)
}

// FinalSummaryFile validates a stored summary path before it is served.
func (m *FileExchangeManager) FinalSummaryFile(idea *models.Idea) (string, error) {
	if !idea.HasFinalSummary() {
		return "", NotFound("final summary not uploaded")
	}
	return ensureWithin(m.summariesRoot, idea.FinalSummaryPath)
}

// RemoveFinalSummary deletes a superseded summary file and its version directory.
func (m *FileExchangeManager) RemoveFinalSummary(path string) error {
	if path == "" {
		return nil
	}
	abs, err := ensureWithin(m.summariesRoot, path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	os.Remove(filepath.Dir(abs))
	return nil
}

// StorePerIdeaTemplate installs the template shared by every PER_IDEA assignment of an idea,
// replacing any previous one after the new file is in place.
func (m *FileExchangeManager) StorePerIdeaTemplate(ctx context.Context, ideaID uint, up Upload, settings models.Settings) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	dir, err := resolveWithin(m.perIdeaRoot, ideaSegment(ideaID))
	if err != nil {
		return StoredFile{}, err
	}
	stored, err := m.storeUpload(dir, up, []string{".docx"}, settings.MaxEvaluationFileSize)
	if err != nil {
		return StoredFile{}, err
	}

	files, err := visibleFiles(dir)
	if err != nil {
		return stored, nil
	}
	for _, f := range files {
		if f.Name() != stored.Filename {
			os.Remove(filepath.Join(dir, f.Name()))
		}
	}
	return stored, nil
}

// TemplateSourceFor picks the resolver for a template source.
func (m *FileExchangeManager) TemplateSourceFor(kind models.TemplateSource) (TemplateSourceResolver, error) {
	switch kind {
	case models.TemplateStatic:
		return m.static, nil
	case models.TemplatePerIdea:
		return m.perIdea, nil
	case models.TemplateGenerated:
		return m.generated, nil
	}
	return nil, fmt.Errorf("unknown template source %q", kind)
}

// ResolveTemplate returns the template file for a, materializing it when needed.
// a must have Idea and Judge loaded.
func (m *FileExchangeManager) ResolveTemplate(ctx context.Context, a *models.Assignment) (TemplateFile, error) {
	src, err := m.TemplateSourceFor(a.TemplateSource)
	if err != nil {
		return TemplateFile{}, err
	}
	return src.Resolve(ctx, a)
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

func (k *keyedMutex) Lock(key uint) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uint]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
