package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"innovation-review-api/models"

	"github.com/google/uuid"
	"github.com/lukasjarosch/go-docx"
	"golang.org/x/sync/singleflight"
)

// TemplateFile is a resolved evaluation template.
type TemplateFile struct {
	Path        string
	DisplayName string
}

// TemplateSourceResolver produces the template file for an assignment.
// Implementations: StaticTemplate, PerIdeaTemplate, GeneratedTemplate.
type TemplateSourceResolver interface {
	Resolve(ctx context.Context, a *models.Assignment) (TemplateFile, error)
}

// StaticTemplate serves one shared file for every assignment.
type StaticTemplate struct {
	dir      string
	filename string
}

func (s *StaticTemplate) Resolve(_ context.Context, _ *models.Assignment) (TemplateFile, error) {
	path, err := resolveWithin(s.dir, s.filename)
	if err != nil {
		return TemplateFile{}, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return TemplateFile{}, NotFound("evaluation template has not been configured")
		}
		return TemplateFile{}, err
	}
	return TemplateFile{Path: path, DisplayName: s.filename}, nil
}

// PerIdeaTemplate serves the file an administrator uploaded for the idea.
type PerIdeaTemplate struct {
	root string
}

func (p *PerIdeaTemplate) Resolve(_ context.Context, a *models.Assignment) (TemplateFile, error) {
	dir, err := resolveWithin(p.root, ideaSegment(a.IdeaID))
	if err != nil {
		return TemplateFile{}, err
	}
	name, err := singleVisibleFile(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return TemplateFile{}, NotFound("no evaluation template uploaded for this idea")
		}
		return TemplateFile{}, err
	}
	return TemplateFile{Path: filepath.Join(dir, name), DisplayName: name}, nil
}

// DocxRenderer fills placeholders in master and writes the result to dst.
type DocxRenderer func(master, dst string, placeholders map[string]string) error

// RenderDocx replaces {placeholder} markers in a .docx master.
func RenderDocx(master, dst string, placeholders map[string]string) error {
	replaceMap := docx.PlaceholderMap{}
	for k, v := range placeholders {
		replaceMap[k] = v
	}

	doc, err := docx.Open(master)
	if err != nil {
		return fmt.Errorf("open template master: %w", err)
	}
	if err := doc.ReplaceAll(replaceMap); err != nil {
		return fmt.Errorf("fill template placeholders: %w", err)
	}
	if err := doc.WriteToFile(dst); err != nil {
		return fmt.Errorf("write generated template: %w", err)
	}
	return nil
}

// GeneratedTemplate renders a personalised template the first time an assignment asks for
// one and reuses that file afterwards. Concurrent first requests render once.
type GeneratedTemplate struct {
	root     string
	master   string
	criteria models.CriteriaCatalog
	render   DocxRenderer
	group    singleflight.Group
}

func (g *GeneratedTemplate) target(a *models.Assignment) (string, string, error) {
	name := fmt.Sprintf("evaluation_idea%d_judge%d.docx", a.IdeaID, a.JudgeID)
	path, err := resolveWithin(g.root, fmt.Sprintf("assignment_%d", a.ID), name)
	return path, name, err
}

func (g *GeneratedTemplate) Resolve(ctx context.Context, a *models.Assignment) (TemplateFile, error) {
	path, name, err := g.target(a)
	if err != nil {
		return TemplateFile{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return TemplateFile{Path: path, DisplayName: name}, nil
	}

	_, err, _ = g.group.Do(path, func() (any, error) {
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, g.materialize(a, path)
	})
	if err != nil {
		return TemplateFile{}, err
	}
	return TemplateFile{Path: path, DisplayName: name}, nil
}

func (g *GeneratedTemplate) materialize(a *models.Assignment, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create template directory: %w", err)
	}
	tmp := filepath.Join(dir, ".render-"+uuid.NewString()+".docx")
	if err := g.render(g.master, tmp, g.placeholders(a)); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move generated template into place: %w", err)
	}
	templatesGeneratedTotal.Inc()
	return nil
}

func (g *GeneratedTemplate) placeholders(a *models.Assignment) map[string]string {
	labels := make([]string, 0, len(g.criteria))
	for _, c := range g.criteria {
		labels = append(labels, fmt.Sprintf("%s (%g-%g)", c.Label, c.Min, c.Max))
	}

	ph := map[string]string{
		"assignment_id": fmt.Sprintf("%d", a.ID),
		"idea_id":       fmt.Sprintf("%d", a.IdeaID),
		"idea_title":    "",
		"judge_name":    "",
		"criteria":      strings.Join(labels, ", "),
		"deadline":      "-",
		"generated_at":  time.Now().Format("2006-01-02 15:04"),
	}
	if a.Idea != nil {
		ph["idea_title"] = a.Idea.Title
	}
	if a.Judge != nil {
		ph["judge_name"] = a.Judge.DisplayName
	}
	if a.Deadline != nil {
		ph["deadline"] = a.Deadline.Format("2006-01-02 15:04")
	}
	return ph
}
