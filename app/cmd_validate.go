package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/document"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	file         string
	validateMsgs bool
)

func NewCmdValidate(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate dataset documents or broker messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doValidate(out, file, validateMsgs)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File")
	cmd.Flags().BoolVarP(&validateMsgs, "message", "m", false, "The file holds a broker message")

	return cmd
}

func doValidate(out io.Writer, path string, isMessage bool) error {
	if path == "" {
		return errors.New("parameter empty")
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrap(err, "cannot read file")
	}
	documents, err := document.NewValidator()
	if err != nil {
		return err
	}

	if isMessage {
		msg := &message.Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			return err
		}
		fmt.Fprintln(out, "Message found!", msg.ID())
		_, err := message.NewSchemaValidator(documents).Validate(context.Background(), data)
		var verr message.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(out, "The message is invalid!")
			for _, issue := range verr.Errors {
				fmt.Fprintf(out, "%s: %s\n", issue.Path, issue.Message)
			}
			return errors.New("validation failed")
		}
		return err
	}

	err = documents.Validate(data)
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(out, "The document is invalid!")
		fmt.Fprintln(out, verr.Error())
		return errors.New("validation failed")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "The document is valid.")
	return nil
}
