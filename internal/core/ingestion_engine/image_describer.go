package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// ChartInstruction is sent with every picture to the vision describer.
const ChartInstruction = "Describe this financial chart in detail. Extract all axes labels, key data points, trends, and the title. Format as Markdown."

const chartMimeType = "image/png"

var (
	errNoDescriber      = errors.New("no vision describer configured")
	errEmptyDescription = errors.New("vision describer returned an empty description")
)

// ChartAssetName is the file name a chart image is stored under.
func ChartAssetName(unitID string) string {
	return unitID + ".png"
}

// chartNamespace is the asset directory of a quarter.
func chartNamespace(quarter string) string {
	if quarter == "" {
		return "unscoped"
	}
	return quarter
}

// persistChart stores the PNG and returns its reference. It makes no
// network calls besides the asset store itself.
func (i *DocumentIngestor) persistChart(ctx context.Context, attrs DocumentAttributes, unitID string, png []byte) (string, error) {
	var ref string
	err := i.withRetry(ctx, "save chart", func() error {
		var err error
		ref, err = i.assets.SaveAsset(ctx, chartNamespace(attrs.Quarter), ChartAssetName(unitID), png, chartMimeType)
		return err
	})
	return ref, err
}

// describeCharts turns pictures into chart units with bounded concurrency.
// Failures are isolated per picture: the chart is dropped and reported.
func (i *DocumentIngestor) describeCharts(ctx context.Context, attrs DocumentAttributes, charts []pendingChart, rep *Report) []models.RetrievableUnit {
	if len(charts) == 0 {
		return nil
	}
	results := make([]*models.RetrievableUnit, len(charts))

	var g errgroup.Group
	g.SetLimit(i.cfg.MaxConcurrentDescribe)
	for idx, pc := range charts {
		g.Go(func() error {
			u, err := i.describeChart(ctx, attrs, pc)
			if err != nil {
				target := fmt.Sprintf("picture #%d", pc.order)
				if pc.page > 0 {
					target = fmt.Sprintf("picture #%d (page %d)", pc.order, pc.page)
				}
				i.log.Warn("chart skipped", "document", attrs.FileName, "target", target, "error", err)
				rep.fail(StageChart, target, err)
				return nil
			}
			results[idx] = u
			return nil
		})
	}
	_ = g.Wait()

	units := make([]models.RetrievableUnit, 0, len(charts))
	for _, u := range results {
		if u != nil {
			units = append(units, *u)
		}
	}
	return units
}

func (i *DocumentIngestor) describeChart(ctx context.Context, attrs DocumentAttributes, pc pendingChart) (*models.RetrievableUnit, error) {
	data, err := pc.image()
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	if i.describer == nil {
		return nil, errNoDescriber
	}

	id := ContentID(attrs.FileName, models.ContentChart, pc.order, data)
	ref, err := i.persistChart(ctx, attrs, id, data)
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	var desc string
	err = i.withRetry(ctx, "describe chart", func() error {
		d, err := i.describer.DescribeImage(ctx, data, chartMimeType, ChartInstruction)
		if err != nil {
			return err
		}
		if desc = strings.TrimSpace(d); desc == "" {
			return errEmptyDescription
		}
		return nil
	})
	if err != nil {
		if derr := i.assets.DeleteAsset(context.WithoutCancel(ctx), ref); derr != nil {
			i.log.Warn("orphaned chart asset", "ref", ref, "error", derr)
		}
		return nil, fmt.Errorf("describe: %w", err)
	}

	return &models.RetrievableUnit{
		ID:         id,
		DocumentID: attrs.DocumentID,
		Text:       desc,
		Metadata: BuildMetadata(attrs, models.ContentChart, pc.headerPath, UnitExtras{
			ImagePath: ref,
			ChartType: models.ChartTypeFinancialVisual,
			Page:      pc.page,
		}),
	}, nil
}
