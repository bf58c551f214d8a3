package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/mintline/edition_layer/internal/app"
	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/lifecycle"
	"github.com/mintline/edition_layer/internal/app/services/allocation"
	"github.com/mintline/edition_layer/internal/config"
)

type seedOptions struct {
	catalog string
	owner   string
}

// NewSeedCommand creates the collections listed in a YAML catalog.
func NewSeedCommand(root *RootOptions) *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create collections from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.catalog, "catalog", "catalog.yaml", "catalog file to load")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "owner for entries that do not name one")
	return cmd
}

func runSeed(cmd *cobra.Command, root *RootOptions, opts *seedOptions) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	cat, err := config.LoadCatalog(opts.catalog)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close(log)

	application, err := app.New(rt.stores, appOptions(cfg), log.Named("app"))
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer application.Stop(context.WithoutCancel(ctx))

	out := cmd.OutOrStdout()
	ids, err := seedCatalog(ctx, application.Allocation, cat, opts.owner, out)
	p := NewPrinter(out)
	if err != nil {
		p.Error("seed failed after %d collections: %v", len(ids), err)
		return err
	}
	for _, col := range cat.Collections {
		p.Success("%s -> %s", col.Key, ids[col.Key])
	}
	return nil
}

// seedCatalog creates every catalog entry in order and returns catalog key
// to collection id. Box items are resolved through keys seeded earlier.
func seedCatalog(ctx context.Context, svc *allocation.Service, cat *config.Catalog, defaultOwner string, out io.Writer) (map[string]string, error) {
	admin := allocation.Caller{ID: "seed", Role: allocation.RoleAdmin}
	ids := make(map[string]string, len(cat.Collections))
	bar := NewProgressBar(out, len(cat.Collections), "seeding")

	for _, entry := range cat.Collections {
		req := allocation.CreateCollectionRequest{
			Kind:          collection.KindNFT,
			Name:          entry.Name,
			Description:   entry.Description,
			ImageURL:      entry.ImageURL,
			Author:        entry.Author,
			Price:         entry.Price,
			Owner:         entry.Owner,
			TotalQuantity: entry.TotalQuantity,
			OpenLimit:     entry.OpenLimit,
		}
		if req.Owner == "" {
			req.Owner = defaultOwner
		}
		if req.Owner == "" {
			return ids, fmt.Errorf("collection %s: owner is required", entry.Key)
		}
		if entry.Kind == config.KindMysteryBox {
			req.Kind = collection.KindMysteryBox
			for _, it := range entry.Items {
				req.Items = append(req.Items, allocation.PoolItemInput{
					CollectionID: ids[it.Collection],
					Weight:       it.Weight,
					Quantity:     it.Quantity,
				})
			}
		}

		created, err := svc.CreateCollection(ctx, admin, req)
		if err != nil {
			return ids, fmt.Errorf("collection %s: %w", entry.Key, err)
		}
		ids[entry.Key] = created.ID

		if entry.Status != "" {
			status, err := parseCollectionStatus(entry.Status)
			if err != nil {
				return ids, fmt.Errorf("collection %s: %w", entry.Key, err)
			}
			if status != collection.StatusDraft {
				if _, err := svc.SetCollectionStatus(ctx, admin, allocation.SetStatusRequest{
					CollectionID: created.ID,
					Status:       status,
				}); err != nil {
					return ids, fmt.Errorf("collection %s: set status: %w", entry.Key, err)
				}
			}
		}
		bar.Increment()
	}
	bar.Finish()
	return ids, nil
}

// parseCollectionStatus accepts a display label such as "published" or
// "flash_sale".
func parseCollectionStatus(raw string) (collection.Status, error) {
	want := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", " "))
	for s := collection.StatusDraft; s <= collection.StatusAlmostSoldOut; s++ {
		if lifecycle.CollectionLabel(s) == want {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown collection status %q", raw)
}
