package services

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"portalti-api/models"
)

// ActaRenderer renders the closing certificate (acta) for a sign-off
// document. The output is a self-contained printable HTML document; swapping
// in a real PDF engine only requires another DocumentRenderer.
type ActaRenderer struct {
	tmpl *template.Template
}

const actaTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Paz y Salvo N° {{.ID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; }
h1 { font-size: 20px; }
table { border-collapse: collapse; width: 100%; margin-top: 16px; }
th, td { border: 1px solid #444; padding: 6px 10px; font-size: 13px; text-align: left; }
.meta { margin-top: 12px; font-size: 14px; }
.hash { font-family: monospace; font-size: 11px; word-break: break-all; }
</style>
</head>
<body>
<h1>Acta de Paz y Salvo N° {{.ID}}</h1>
<div class="meta">
<p><strong>Funcionario:</strong> {{.EmployeeName}} ({{.EmployeeRut}})</p>
<p><strong>Fecha de salida:</strong> {{.ExitDate.Format "02-01-2006"}}</p>
<p><strong>Motivo:</strong> {{.Reason}}</p>
<p><strong>Estado:</strong> {{.Status}}</p>
</div>
<table>
<tr><th>#</th><th>Rol</th><th>Firmante</th><th>Estado</th><th>Fecha</th></tr>
{{range .Slots}}
<tr>
<td>{{.Order}}</td>
<td>{{.Role}}</td>
<td>{{if .SignerName}}{{.SignerName}}{{else}}Sin asignar{{end}}</td>
<td>{{.Status}}</td>
<td>{{if .SignedAt}}{{.SignedAt.Format "02-01-2006 15:04"}}{{end}}</td>
</tr>
{{end}}
</table>
{{if .AssetsSnapshot}}
<h2>Activos asignados al momento de la solicitud</h2>
<table>
<tr><th>Descripción</th><th>Estado</th><th>Observación</th></tr>
{{range .AssetsSnapshot}}
<tr><td>{{.Description}}</td><td>{{.Status}}</td><td>{{.Observation}}</td></tr>
{{end}}
</table>
{{end}}
</body>
</html>
`

func NewActaRenderer() *ActaRenderer {
	return &ActaRenderer{
		tmpl: template.Must(template.New("acta").Parse(actaTemplate)),
	}
}

func (r *ActaRenderer) Render(doc *models.PazYSalvo) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LocalStorage persists artifacts under a base directory, keyed by a logical
// path plus a random suffix to avoid collisions.
type LocalStorage struct {
	BaseDir string
}

func NewLocalStorage(baseDir string) *LocalStorage {
	if baseDir == "" {
		baseDir = os.Getenv("UPLOAD_PATH")
	}
	if baseDir == "" {
		baseDir = "./uploads"
	}
	return &LocalStorage{BaseDir: baseDir}
}

func (s *LocalStorage) Save(data []byte, logicalPath string) (string, error) {
	ext := filepath.Ext(logicalPath)
	base := logicalPath[:len(logicalPath)-len(ext)]
	stored := filepath.Join(s.BaseDir, base+"-"+uuid.NewString()+ext)

	if err := os.MkdirAll(filepath.Dir(stored), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(stored, data, 0o644); err != nil {
		return "", err
	}
	return stored, nil
}

func (s *LocalStorage) Remove(storedPath string) error {
	return os.Remove(storedPath)
}
