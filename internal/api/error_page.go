package api

import "html/template"

type errorPageData struct {
	Message string
	Status  int
	Kind    string
	Stack   string
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Message}}</title>
<link rel="stylesheet" href="/stylesheets/style.css">
</head>
<body>
<h1>{{.Message}}</h1>
<h2>{{.Status}} ({{.Kind}} error)</h2>
<pre>{{.Stack}}</pre>
</body>
</html>
`))
