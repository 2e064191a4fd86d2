package presets

import (
	"context"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// ExportDetections writes up to limit detections of a session to a Parquet
// file and returns how many rows were written
func ExportDetections(ctx context.Context, src DetectionSource, sessionID int64, filePath string, limit int, logger *zap.Logger) (int, error) {
	records, err := src.RecentDetections(ctx, sessionID, limit)
	if err != nil {
		return 0, err
	}

	rows := make([]DetectionRow, len(records))
	for i, r := range records {
		rows[i] = DetectionRow{
			ID:           r.ID,
			SessionID:    r.SessionID,
			ObjectType:   r.ObjectType,
			BlurMethod:   r.BlurMethod,
			Confidence:   r.Confidence,
			DetectedAtMS: r.DetectedAt.UnixMilli(),
		}
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[DetectionRow](file)
	if _, err := writer.Write(rows); err != nil {
		return 0, fmt.Errorf("failed to write detections: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish Parquet file: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close export file: %w", err)
	}

	logger.Info("Detections exported",
		zap.Int64("session_id", sessionID),
		zap.Int("rows", len(rows)),
		zap.String("file", filePath))
	return len(rows), nil
}
