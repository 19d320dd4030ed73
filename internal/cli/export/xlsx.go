// Package export writes chat transcripts to spreadsheet files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

const SheetName = "Transcript"

var headers = []string{"Message ID", "Sent At (UTC)", "Sender", "Type", "Content", "Media URL", "Duration (s)", "Read"}

// Transcript builds the workbook for one chat. Messages keep their order.
func Transcript(chatID domain.ChatID, msgs []domain.InboundEvent) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for i, m := range msgs {
		row := i + 2
		values := []any{
			string(m.ID),
			m.CreatedDate.UTC().Format("2006-01-02 15:04:05"),
			string(m.SenderID),
			m.MessageType.String(),
			m.Content,
			"",
			"",
			m.IsRead,
		}
		if m.MediaURL != nil {
			values[5] = *m.MediaURL
		}
		if m.Duration != nil {
			values[6] = *m.Duration
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "B", "B", 20)
	_ = f.SetColWidth(SheetName, "E", "E", 60)
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Chat %s", chatID),
		Creator: "mentorchat",
	})
	return f, nil
}

// WriteFile saves the transcript of a chat to path.
func WriteFile(path string, chatID domain.ChatID, msgs []domain.InboundEvent) error {
	f, err := Transcript(chatID, msgs)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Write streams the transcript as an .xlsx document.
func Write(w io.Writer, chatID domain.ChatID, msgs []domain.InboundEvent) error {
	f, err := Transcript(chatID, msgs)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
