package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/document"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

// datasetCmd runs lifecycle operations against the configured store
// without going through the broker. Events are not published.
type datasetCmd struct {
	out    io.Writer
	logger logrus.FieldLogger
	config *Config
}

func NewCmdDataset(out io.Writer, logger logrus.FieldLogger, config *Config) *cobra.Command {
	c := &datasetCmd{out: out, logger: logger, config: config}

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage datasets in the catalog",
	}

	var (
		createFile string
		publish    bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a dataset from a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), func(ctx context.Context, svc *catalog.Service, documents *document.Validator) (interface{}, error) {
				d, err := documents.ReadFile(fs, createFile)
				if err != nil {
					return nil, err
				}
				if publish {
					d.State = catalog.StatePublished
				}
				return svc.Create(ctx, d)
			})
		},
	}
	create.Flags().StringVarP(&createFile, "file", "f", "", "Dataset document")
	create.Flags().BoolVar(&publish, "publish", false, "Publish the dataset when it is created")
	_ = create.MarkFlagRequired("file")

	var updateFile string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the metadata of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: c.withID(func(ctx context.Context, svc *catalog.Service, documents *document.Validator, id uuid.UUID) (interface{}, error) {
			d, err := documents.ReadFile(fs, updateFile)
			if err != nil {
				return nil, err
			}
			d.ID = id
			return svc.Update(ctx, d)
		}),
	}
	update.Flags().StringVarP(&updateFile, "file", "f", "", "Dataset document")
	_ = update.MarkFlagRequired("file")

	var flush bool
	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: c.withID(func(ctx context.Context, svc *catalog.Service, _ *document.Validator, id uuid.UUID) (interface{}, error) {
			if err := svc.Delete(ctx, id, flush); err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": id, "deleted": true, "flushed": flush}, nil
		}),
	}
	remove.Flags().BoolVar(&flush, "flush", false, "Remove the dataset and its history permanently")

	var revision string
	revisions := &cobra.Command{
		Use:   "revisions <id>",
		Short: "List the published revisions of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: c.withID(func(ctx context.Context, svc *catalog.Service, _ *document.Validator, id uuid.UUID) (interface{}, error) {
			if revision == "" {
				return svc.Revisions(ctx, id)
			}
			n, err := cast.ToIntE(revision)
			if err != nil {
				return nil, errors.Wrap(err, "invalid revision")
			}
			return svc.Revision(ctx, id, n)
		}),
	}
	revisions.Flags().StringVar(&revision, "revision", "", "Show a single published revision")

	var editors []string
	permissions := &cobra.Command{
		Use:   "permissions <id>",
		Short: "Show or replace the editors of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: c.withID(func(ctx context.Context, svc *catalog.Service, _ *document.Validator, id uuid.UUID) (interface{}, error) {
			if len(editors) == 0 {
				return svc.Permissions(ctx, id)
			}
			return svc.UpdatePermissions(ctx, id, editors)
		}),
	}
	permissions.Flags().StringSliceVar(&editors, "editor", nil, "Editor user id, repeatable")

	cmd.AddCommand(
		create,
		update,
		remove,
		revisions,
		permissions,
		c.simple("show", "Print a dataset", (*catalog.Service).Get),
		c.simple("publish", "Publish a draft", (*catalog.Service).Publish),
		c.simple("draft", "Create a draft of a published dataset", (*catalog.Service).CreateDraft),
		c.simple("new-version", "Create a new version of a published dataset", (*catalog.Service).CreateNewVersion),
		c.simple("preserve", "Copy a dataset to the preservation catalog", (*catalog.Service).CreatePreservationVersion),
		&cobra.Command{
			Use:   "versions <id>",
			Short: "List the versions of a dataset",
			Args:  cobra.ExactArgs(1),
			RunE: c.withID(func(ctx context.Context, svc *catalog.Service, _ *document.Validator, id uuid.UUID) (interface{}, error) {
				return svc.Versions(ctx, id)
			}),
		},
	)

	return cmd
}

type datasetOp func(ctx context.Context, svc *catalog.Service, documents *document.Validator) (interface{}, error)

type datasetIDOp func(ctx context.Context, svc *catalog.Service, documents *document.Validator, id uuid.UUID) (interface{}, error)

func (c *datasetCmd) simple(use, short string, op func(*catalog.Service, context.Context, uuid.UUID) (*catalog.Dataset, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: c.withID(func(ctx context.Context, svc *catalog.Service, _ *document.Validator, id uuid.UUID) (interface{}, error) {
			return op(svc, ctx, id)
		}),
	}
}

func (c *datasetCmd) withID(op datasetIDOp) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrapf(err, "invalid dataset id %q", args[0])
		}
		return c.run(cmd.Context(), func(ctx context.Context, svc *catalog.Service, documents *document.Validator) (interface{}, error) {
			return op(ctx, svc, documents, id)
		})
	}
}

func (c *datasetCmd) run(ctx context.Context, op datasetOp) error {
	if ctx == nil {
		ctx = context.Background()
	}
	documents, err := document.NewValidator()
	if err != nil {
		return err
	}
	comps, err := newComponents(ctx, c.logger, c.config, dynamodbFactory(c.logger, c.config), nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.close(); err != nil {
			c.logger.WithError(err).Warn("Catalog store could not be closed.")
		}
	}()

	res, err := op(ctx, comps.svc, documents)
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *datasetCmd) print(res interface{}) error {
	var (
		out []byte
		err error
	)
	if d, ok := res.(*catalog.Dataset); ok {
		out, err = document.Encode(d)
	} else {
		out, err = json.MarshalIndent(res, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "result could not be encoded")
	}
	_, err = fmt.Fprintln(c.out, string(out))
	return err
}
