package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/store"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import knowledge graphs and citations from a YAML seed file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		graphs, citations, err := importSeed(ctx, st, importFilePath)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int("graphs", graphs),
			zap.Int("citations", citations),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to YAML seed file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

// Seed file schema. Graph elements mirror the model types; citations carry
// the domain they belong to.
type seedEntity struct {
	ID         string  `yaml:"id"`
	Type       string  `yaml:"type"`
	Name       string  `yaml:"name"`
	Confidence float64 `yaml:"confidence"`
}

type seedRelationship struct {
	SourceID   string  `yaml:"source_id"`
	TargetID   string  `yaml:"target_id"`
	Type       string  `yaml:"type"`
	Confidence float64 `yaml:"confidence"`
}

type seedClaim struct {
	ID         string  `yaml:"id"`
	Statement  string  `yaml:"statement"`
	Confidence float64 `yaml:"confidence"`
}

type seedGraph struct {
	Domain        string             `yaml:"domain"`
	Entities      []seedEntity       `yaml:"entities"`
	Relationships []seedRelationship `yaml:"relationships"`
	Claims        []seedClaim        `yaml:"claims"`
}

type seedCitation struct {
	Domain       string    `yaml:"domain"`
	Platform     string    `yaml:"platform"`
	ResponseText string    `yaml:"response_text"`
	URL          string    `yaml:"url"`
	CitedAt      time.Time `yaml:"cited_at"`
}

type seedFile struct {
	Graphs    []seedGraph    `yaml:"graphs"`
	Citations []seedCitation `yaml:"citations"`
}

// importSeed loads a seed file and persists its graphs and citations.
// Citations are grouped per domain and bulk-inserted. Returns the number of
// graphs and citations written.
func importSeed(ctx context.Context, st store.Store, path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, eris.Wrap(err, "import: read seed file")
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, 0, eris.Wrap(err, "import: parse seed file")
	}

	for _, sg := range seed.Graphs {
		if sg.Domain == "" {
			return 0, 0, eris.New("import: graph without domain")
		}
		g := &model.KnowledgeGraph{
			Domain:   sg.Domain,
			Metadata: model.GraphMetadata{Version: 1, UpdatedAt: time.Now().UTC()},
		}
		for _, e := range sg.Entities {
			g.Entities = append(g.Entities, model.Entity{
				ID:         e.ID,
				Type:       model.EntityType(e.Type),
				Name:       e.Name,
				Confidence: e.Confidence,
			})
		}
		for _, r := range sg.Relationships {
			g.Relationships = append(g.Relationships, model.Relationship{
				SourceID:   r.SourceID,
				TargetID:   r.TargetID,
				Type:       r.Type,
				Confidence: r.Confidence,
			})
		}
		for _, c := range sg.Claims {
			g.Claims = append(g.Claims, model.Claim{
				ID:         c.ID,
				Statement:  c.Statement,
				Confidence: c.Confidence,
			})
		}
		if err := st.SaveGraph(ctx, g); err != nil {
			return 0, 0, eris.Wrapf(err, "import: save graph %s", sg.Domain)
		}
	}

	byDomain := make(map[string][]model.Citation)
	for _, sc := range seed.Citations {
		if sc.Domain == "" {
			return 0, 0, eris.New("import: citation without domain")
		}
		byDomain[sc.Domain] = append(byDomain[sc.Domain], model.Citation{
			Platform:     sc.Platform,
			ResponseText: sc.ResponseText,
			URL:          sc.URL,
			CitedAt:      sc.CitedAt,
		})
	}

	total := 0
	for domain, cs := range byDomain {
		n, err := st.InsertCitations(ctx, cs, domain)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "import: citations %s", domain)
		}
		total += n
	}

	return len(seed.Graphs), total, nil
}
