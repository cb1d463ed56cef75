// Package logexport renders the audit log into a standalone HTML document
// with client-side filtering by user id. The document is the only durable
// artifact besides the database, so the markup carries everything it needs.
package logexport

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/intenise/sentry/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

type row struct {
	Time    string
	UserID  int64
	Action  string
	Details string
}

type page struct {
	Rows      []row
	Watermark string
}

var pageTemplate = template.Must(template.New("logs").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Логи чата</title>
    <style>
        body { font-family: sans-serif; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 8px; text-align: left; border-bottom: 1px solid #ddd; }
        tr:hover { background-color: #f5f5f5; }
        #watermark { position: fixed; bottom: 10px; right: 10px; opacity: 0.5; font-size: 12px; }
    </style>
</head>
<body>
    <h1>Логи чата</h1>
    <input type="text" id="search-input" placeholder="Поиск по ID пользователя...">
    <button onclick="searchLogs()">Найти</button>
    <button onclick="resetSearch()">Сбросить</button>

    <table id="log-table">
        <thead>
            <tr>
                <th>Время</th>
                <th>ID пользователя</th>
                <th>Действие</th>
                <th>Детали</th>
            </tr>
        </thead>
        <tbody>
{{- range .Rows }}
            <tr>
                <td>{{ .Time }}</td>
                <td>{{ .UserID }}</td>
                <td>{{ .Action }}</td>
                <td>{{ .Details }}</td>
            </tr>
{{- end }}
        </tbody>
    </table>

    <script>
        function searchLogs() {
            const searchTerm = document.getElementById('search-input').value.trim();
            if (searchTerm === '') {
                return;
            }
            const rows = document.getElementById('log-table').querySelectorAll('tbody tr');
            rows.forEach(row => {
                const userId = row.cells[1].textContent;
                row.style.display = userId.includes(searchTerm) ? '' : 'none';
            });
        }

        function resetSearch() {
            const rows = document.getElementById('log-table').querySelectorAll('tbody tr');
            rows.forEach(row => { row.style.display = ''; });
            document.getElementById('search-input').value = '';
        }
    </script>

    <div id="watermark">{{ .Watermark }}</div>
</body>
</html>
`))

// Render produces the HTML export for the given audit entries. Entries are
// rendered in the order given (callers pass them newest first).
func Render(entries []*models.AuditEntry, watermark string) ([]byte, error) {
	p := page{Watermark: watermark}
	for _, e := range entries {
		p.Rows = append(p.Rows, row{
			Time:    e.CreatedAt.In(time.UTC).Format(timeLayout),
			UserID:  e.UserID,
			Action:  string(e.Action),
			Details: e.Details,
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("failed to render log export: %w", err)
	}

	return buf.Bytes(), nil
}
