package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/topfew/pkg/config"
	"github.com/Sumatoshi-tech/topfew/pkg/topk"
)

// render writes top to w in the configured format.
func render(w io.Writer, out config.OutputConfig, top []topk.KeyCount) error {
	switch out.Format {
	case config.FormatJSON:
		return renderJSON(w, top)
	case config.FormatYAML:
		return renderYAML(w, top)
	case config.FormatTable:
		return renderTable(w, top)
	case config.FormatText:
		return renderText(w, top, out.NoColor)
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidFormat, out.Format)
	}
}

func renderText(w io.Writer, top []topk.KeyCount, noColor bool) error {
	count := color.New(color.FgCyan, color.Bold)
	if noColor {
		count.DisableColor()
	}

	for _, kc := range top {
		_, err := fmt.Fprintf(w, "%s %s\n", count.Sprint(kc.Count), kc.Key)
		if err != nil {
			return fmt.Errorf("write text: %w", err)
		}
	}

	return nil
}

func renderJSON(w io.Writer, top []topk.KeyCount) error {
	if top == nil {
		top = []topk.KeyCount{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(top)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func renderYAML(w io.Writer, top []topk.KeyCount) error {
	if top == nil {
		top = []topk.KeyCount{}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(top)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

func renderTable(w io.Writer, top []topk.KeyCount) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"Rank", "Count", "Key"})

	for i, kc := range top {
		tbl.AppendRow(table.Row{strconv.Itoa(i + 1), strconv.FormatUint(kc.Count, 10), kc.Key})
	}

	tbl.Render()

	return nil
}
