// Package seed loads lesson content into the backend from YAML.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/platform/logger"
)

//go:embed default.yaml
var defaultSeed []byte

type File struct {
	Profiles []Profile `yaml:"profiles"`
	Units    []Unit    `yaml:"units"`
}

type Profile struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

type Unit struct {
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Icon        string  `yaml:"icon"`
	Unlocked    bool    `yaml:"unlocked"`
	Rounds      []Round `yaml:"rounds"`
}

type Round struct {
	Title string `yaml:"title"`
	Words []Word `yaml:"words"`
}

type Word struct {
	English       string `yaml:"english"`
	Russian       string `yaml:"russian"`
	Transcription string `yaml:"transcription"`
	ImageURL      string `yaml:"image_url"`
}

// Writer is the part of the backend the loader needs.
type Writer interface {
	ListUnits(ctx context.Context) ([]classroom.Unit, error)
	CreateUnit(ctx context.Context, title, description, icon string) (classroom.Unit, error)
	SetUnitUnlocked(ctx context.Context, unitID string, unlocked bool) error
	CreateRound(ctx context.Context, unitID, title string) (classroom.Round, error)
	CreateWord(ctx context.Context, w classroom.Word) (classroom.Word, error)
	CreateProfile(ctx context.Context, u classroom.User) (classroom.User, error)
}

// Default returns the seed bundled with the binary.
func Default() (File, error) { return Parse(bytes.NewReader(defaultSeed)) }

// Parse decodes a seed file. Unknown keys are errors so typos do not
// silently drop content.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, f.validate()
}

func (f File) validate() error {
	seen := map[string]bool{}
	for i, u := range f.Units {
		title := strings.TrimSpace(u.Title)
		if title == "" {
			return fmt.Errorf("unit %d: title is required", i+1)
		}
		if seen[title] {
			return fmt.Errorf("unit %q appears twice", title)
		}
		seen[title] = true
		for j, r := range u.Rounds {
			for k, w := range r.Words {
				if strings.TrimSpace(w.English) == "" {
					return fmt.Errorf("unit %q round %d word %d: english is required", title, j+1, k+1)
				}
			}
		}
	}
	for _, p := range f.Profiles {
		if !classroom.Role(p.Role).Valid() {
			return fmt.Errorf("profile %q: role must be student or teacher", p.Name)
		}
	}
	return nil
}

type Report struct {
	UnitsCreated    int
	UnitsSkipped    int
	WordsCreated    int
	ProfilesCreated int
}

// Load inserts every unit whose title the backend does not have yet, in
// file order so unit numbers ascend. Units already present are left as
// they are.
func Load(ctx context.Context, w Writer, f File, log *logger.Logger) (Report, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "SeedLoader")
	var rep Report

	for _, p := range f.Profiles {
		_, err := w.CreateProfile(ctx, classroom.User{ID: p.ID, Name: p.Name, Email: p.Email, Role: classroom.Role(p.Role)})
		switch {
		case err == nil:
			rep.ProfilesCreated++
		case apperr.IsCode(err, apperr.CodeConflict):
			log.Debug("Profile exists", "name", p.Name)
		default:
			return rep, fmt.Errorf("create profile %q: %w", p.Name, err)
		}
	}

	existing, err := w.ListUnits(ctx)
	if err != nil {
		return rep, fmt.Errorf("list units: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, u := range existing {
		have[strings.TrimSpace(u.Title)] = true
	}

	for _, su := range f.Units {
		title := strings.TrimSpace(su.Title)
		if have[title] {
			rep.UnitsSkipped++
			log.Debug("Unit exists", "title", title)
			continue
		}
		u, err := w.CreateUnit(ctx, title, su.Description, su.Icon)
		if err != nil {
			return rep, fmt.Errorf("create unit %q: %w", title, err)
		}
		for _, sr := range su.Rounds {
			r, err := w.CreateRound(ctx, u.ID, sr.Title)
			if err != nil {
				return rep, fmt.Errorf("create round %q: %w", sr.Title, err)
			}
			for _, sw := range sr.Words {
				_, err := w.CreateWord(ctx, classroom.Word{
					RoundID:       r.ID,
					English:       strings.TrimSpace(sw.English),
					Translation:   strings.TrimSpace(sw.Russian),
					Transcription: sw.Transcription,
					ImageURL:      sw.ImageURL,
				})
				if err != nil {
					return rep, fmt.Errorf("create word %q: %w", sw.English, err)
				}
				rep.WordsCreated++
			}
		}
		if su.Unlocked {
			if err := w.SetUnitUnlocked(ctx, u.ID, true); err != nil {
				return rep, fmt.Errorf("unlock unit %q: %w", title, err)
			}
		}
		have[title] = true
		rep.UnitsCreated++
		log.Info("Unit seeded", "title", title, "unit_number", u.UnitNumber)
	}
	return rep, nil
}
