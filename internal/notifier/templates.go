package notifier

import (
	"bytes"
	"embed"
	"strconv"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Title     string
	Body      string
	Timestamp string
	Test      bool
	Alerts    []AlertRow
}

// AlertRow is one sensor line in the email table.
type AlertRow struct {
	Sensor    string
	Value     string
	Threshold string
	Direction string
	Color     string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// directionColor returns the row color for a crossed bound.
func directionColor(dir models.Direction) string {
	switch dir {
	case models.DirectionTooHigh:
		return "#d32f2f" // red
	case models.DirectionTooLow:
		return "#1976d2" // blue
	default:
		return "#757575" // gray
	}
}

func directionText(dir models.Direction) string {
	switch dir {
	case models.DirectionTooHigh:
		return "above maximum"
	case models.DirectionTooLow:
		return "below minimum"
	default:
		return "within range"
	}
}

func formatValue(v float64, sensor models.SensorType) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + sensor.Unit()
}

// MessageToTemplateData converts a message to template data.
func MessageToTemplateData(msg *Message) TemplateData {
	data := TemplateData{
		Title:     msg.Title,
		Body:      msg.Body,
		Timestamp: msg.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Test:      msg.Test,
	}
	for _, a := range msg.Alerts {
		data.Alerts = append(data.Alerts, AlertRow{
			Sensor:    a.Sensor.Label(),
			Value:     formatValue(a.Value, a.Sensor),
			Threshold: formatValue(a.Threshold, a.Sensor),
			Direction: directionText(a.Direction),
			Color:     directionColor(a.Direction),
		})
	}
	return data
}
