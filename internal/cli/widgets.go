package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/agentui/internal/client"
	"github.com/xiaot623/agentui/internal/domain"
)

// cancelGrace bounds the cancel call made after an interrupt.
const cancelGrace = 5 * time.Second

// askAndWait creates a request, waits for it to finish and prints the final
// request. An interrupted wait withdraws the request before returning.
func askAndWait(cmd *cobra.Command, opts *globalOptions, widget domain.WidgetType, input any) error {
	ctx := cmd.Context()
	cl := opts.client()

	created, err := cl.CreateRequest(ctx, client.CreateParams{
		Type:           widget,
		SessionID:      opts.sessionID,
		Input:          input,
		TimeoutSeconds: opts.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", widget, err)
	}

	done, err := cl.Await(ctx, created.ID, opts.waitTimeout)
	if err != nil {
		if ctx.Err() != nil {
			cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelGrace)
			defer cancel()
			_, _ = cl.CancelRequest(cancelCtx, created.ID, "interrupted")
		}
		return fmt.Errorf("failed to wait for %s response: %w", widget, err)
	}
	return printJSON(cmd.OutOrStdout(), done)
}

// readJSONArg resolves a JSON flag value: "-" reads stdin, "@path" reads a
// file, inline JSON is used as is and anything else is read as a file path.
func readJSONArg(value string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case value == "-":
		data, err = io.ReadAll(stdin)
	case strings.HasPrefix(value, "@"):
		data, err = os.ReadFile(strings.TrimPrefix(value, "@"))
	case json.Valid([]byte(value)):
		data = []byte(value)
	default:
		data, err = os.ReadFile(value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", value, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%q is not valid JSON", value)
	}
	return data, nil
}

func newConfirmCommand(opts *globalOptions) *cobra.Command {
	var input domain.ConfirmInput

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Ask for a yes/no decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return askAndWait(cmd, opts, domain.WidgetConfirm, input)
		},
	}

	cmd.Flags().StringVar(&input.Title, "title", "", "Dialog title")
	cmd.Flags().StringVar(&input.Message, "message", "", "Optional dialog message")
	cmd.Flags().StringVar(&input.ApproveText, "approve-text", "", "Optional approve button text")
	cmd.Flags().StringVar(&input.RejectText, "reject-text", "", "Optional reject button text")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newSelectCommand(opts *globalOptions) *cobra.Command {
	var input domain.SelectInput

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Ask the user to pick one or more options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(input.Options) == 0 {
				return errors.New("at least one --option is required")
			}
			return askAndWait(cmd, opts, domain.WidgetSelect, input)
		},
	}

	cmd.Flags().StringVar(&input.Title, "title", "", "Dialog title")
	cmd.Flags().StringArrayVar(&input.Options, "option", nil, "Option value (repeatable)")
	cmd.Flags().BoolVar(&input.Multi, "multi", false, "Allow selecting several options")
	cmd.Flags().BoolVar(&input.Searchable, "searchable", false, "Show a search box")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newFormCommand(opts *globalOptions) *cobra.Command {
	var (
		title  string
		schema string
	)

	cmd := &cobra.Command{
		Use:   "form",
		Short: "Ask the user to fill a JSON Schema form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readJSONArg(schema, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return askAndWait(cmd, opts, domain.WidgetForm, domain.FormInput{Title: title, Schema: raw})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Dialog title")
	cmd.Flags().StringVar(&schema, "schema", "", "JSON Schema: inline, a file path, @file.json or - for stdin")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func newUploadCommand(opts *globalOptions) *cobra.Command {
	var input domain.UploadInput

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Ask the user to upload files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return askAndWait(cmd, opts, domain.WidgetUpload, input)
		},
	}

	cmd.Flags().StringVar(&input.Title, "title", "", "Dialog title")
	cmd.Flags().StringSliceVar(&input.Accept, "accept", nil, "Accepted extensions or MIME types (e.g. .log,image/png)")
	cmd.Flags().BoolVar(&input.Multiple, "multiple", false, "Allow several files")
	cmd.Flags().Int64Var(&input.MaxSize, "max-size", 0, "Maximum file size in bytes")
	cmd.Flags().StringVar(&input.CallbackURL, "callback-url", "", "Optional URL the client posts files to")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTableCommand(opts *globalOptions) *cobra.Command {
	var (
		input domain.TableInput
		data  string
	)

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Ask the user to pick rows from a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readJSONArg(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &input.Data); err != nil {
				return fmt.Errorf("--data must be a JSON array of rows: %w", err)
			}
			return askAndWait(cmd, opts, domain.WidgetTable, input)
		},
	}

	cmd.Flags().StringVar(&input.Title, "title", "", "Dialog title")
	cmd.Flags().StringVar(&data, "data", "", "Rows as a JSON array: inline, a file path, @file.json or - for stdin")
	cmd.Flags().StringSliceVar(&input.Columns, "columns", nil, "Column names (derived by the client if omitted)")
	cmd.Flags().BoolVar(&input.MultiSelect, "multi-select", false, "Allow selecting several rows")
	cmd.Flags().BoolVar(&input.Searchable, "searchable", false, "Show a search box")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newImageCommand(opts *globalOptions) *cobra.Command {
	var (
		input    domain.ImageInput
		sources  []string
		labels   []string
		alts     []string
		captions []string
	)

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Show images and ask for a pick or a confirmation",
		Long: `Show one or more images. Each --image is a URL, a data: URI or a local
file; local files are uploaded to the broker first and expire with the request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for flag, values := range map[string][]string{"image-label": labels, "image-alt": alts, "image-caption": captions} {
				if len(values) > 0 && len(values) != len(sources) {
					return fmt.Errorf("--%s count (%d) must match --image count (%d)", flag, len(values), len(sources))
				}
			}

			items, err := resolveImages(cmd.Context(), opts, sources)
			if err != nil {
				return err
			}
			for i := range items {
				if len(labels) > 0 {
					items[i].Label = labels[i]
				}
				if len(alts) > 0 {
					items[i].Alt = alts[i]
				}
				if len(captions) > 0 {
					items[i].Caption = captions[i]
				}
			}
			input.Images = items
			return askAndWait(cmd, opts, domain.WidgetImage, input)
		},
	}

	cmd.Flags().StringVar(&input.Title, "title", "", "Dialog title")
	cmd.Flags().StringVar(&input.Message, "message", "", "Optional question shown with the images")
	cmd.Flags().StringVar(&input.Mode, "mode", domain.ImageModeSelect, "Widget mode: select|confirm")
	cmd.Flags().StringArrayVar(&sources, "image", nil, "Image source (repeatable): file path, URL or data: URI")
	cmd.Flags().StringArrayVar(&labels, "image-label", nil, "Per-image label (repeatable)")
	cmd.Flags().StringArrayVar(&alts, "image-alt", nil, "Per-image alt text (repeatable)")
	cmd.Flags().StringArrayVar(&captions, "image-caption", nil, "Per-image caption (repeatable)")
	cmd.Flags().StringArrayVar(&input.Options, "option", nil, "Option shown next to the images (repeatable)")
	cmd.Flags().BoolVar(&input.Multi, "multi", false, "Allow selecting several images or options")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// resolveImages uploads local files and keeps URLs and data URIs untouched.
func resolveImages(ctx context.Context, opts *globalOptions, sources []string) ([]domain.ImageItem, error) {
	cl := opts.client()
	items := make([]domain.ImageItem, 0, len(sources))
	for _, src := range sources {
		if isRemoteImage(src) {
			items = append(items, domain.ImageItem{Src: src})
			continue
		}

		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		up, err := cl.UploadImage(ctx, filepath.Base(src), f, opts.timeout)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to upload image %q: %w", src, err)
		}
		items = append(items, domain.ImageItem{Src: up.URL})
	}
	return items, nil
}

func isRemoteImage(src string) bool {
	return strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "data:")
}
