package extract

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// mdConverter wraps a reusable, goroutine-safe html-to-markdown converter.
// The base plugin strips script/style/head leftovers, commonmark renders the
// usual constructs, and the table plugin keeps tabular data intact with
// minimal cell padding.
type mdConverter struct {
	conv *converter.Converter
}

func newMarkdownConverter() *mdConverter {
	return &mdConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Convert renders HTML to markdown. The base URL resolves relative links and
// image sources so the output stands alone.
func (m *mdConverter) Convert(htmlContent, baseURL string) (string, error) {
	return m.conv.ConvertString(htmlContent, converter.WithDomain(baseURL))
}
