package emit

import (
	"bytes"
	"html/template"
)

const defaultHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<div id="root"></div>
{{- range .Scripts}}
<script src="{{.}}"></script>
{{- end}}
</body>
</html>
`

// shellData is passed to the HTML template.
type shellData struct {
	Title string
	// Scripts are the public URLs of the referenced chunk files, in load order
	Scripts []string
	// Chunks are the names of the referenced chunks
	Chunks []string
}

func loadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return template.New("shell").Parse(defaultHTMLTemplate)
	}
	return template.ParseFiles(path)
}

func renderShell(tmpl *template.Template, data shellData) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
