package report

import "html/template"

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Product Fidelity Report</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem; background: #f6f7f9; color: #1f2430; }
  h1 { margin-bottom: 0.25rem; }
  .generated { color: #6b7280; margin-bottom: 1.5rem; }
  .cards { display: flex; gap: 1rem; flex-wrap: wrap; margin-bottom: 2rem; }
  .card { background: #fff; border-radius: 8px; padding: 1rem 1.5rem; box-shadow: 0 1px 3px rgba(0,0,0,0.1); min-width: 8rem; }
  .card .value { font-size: 1.8rem; font-weight: 700; }
  .card .label { color: #6b7280; font-size: 0.85rem; text-transform: uppercase; }
  .product { background: #fff; border-radius: 8px; padding: 1rem 1.5rem; margin-bottom: 1rem; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
  .product-header { display: flex; align-items: center; gap: 0.75rem; }
  .category { font-size: 0.75rem; font-weight: 700; padding: 0.2rem 0.6rem; border-radius: 4px; }
  .category.passed { background: #def7e4; color: #166534; }
  .category.review { background: #fef3c7; color: #92400e; }
  .category.error { background: #fee2e2; color: #991b1b; }
  .score { font-weight: 700; padding: 0.2rem 0.6rem; border-radius: 4px; }
  .score-high { background: #def7e4; color: #166534; }
  .score-medium { background: #fef3c7; color: #92400e; }
  .score-low { background: #fee2e2; color: #991b1b; }
  .description { color: #374151; margin: 0.75rem 0; }
  .error-message { color: #991b1b; font-family: monospace; }
  .attempt { border-top: 1px solid #e5e7eb; padding: 0.75rem 0; }
  .attempt img, .reference img { max-width: 240px; border-radius: 6px; }
  .verdicts { margin: 0.5rem 0 0 1rem; }
  .verdicts li.pass::before { content: "✓ "; color: #166534; }
  .verdicts li.fail::before { content: "✗ "; color: #991b1b; }
  ul { list-style: none; padding: 0; }
</style>
</head>
<body>
<h1>Product Fidelity Report</h1>
<div class="generated">Generated {{.GeneratedAt}}</div>

<div class="cards">
  <div class="card"><div class="value">{{.Total}}</div><div class="label">Products</div></div>
  <div class="card"><div class="value">{{.Passed}}</div><div class="label">Passed</div></div>
  <div class="card"><div class="value">{{.NeedsReview}}</div><div class="label">Needs Review</div></div>
  <div class="card"><div class="value">{{.Errored}}</div><div class="label">Errors</div></div>
  <div class="card"><div class="value">{{.AvgScore}}</div><div class="label">Avg Score</div></div>
  <div class="card"><div class="value">{{.AvgAttempts}}</div><div class="label">Avg Attempts</div></div>
</div>

{{range .Products}}
<div class="product">
  <details{{if .Open}} open{{end}}>
    <summary class="product-header">
      <strong>{{.SKU}}</strong>
      <span class="category {{.CategoryClass}}">{{.Category}}</span>
      <span class="score {{.ScoreClass}}">{{.Score}}</span>
    </summary>
    {{if .Error}}<p class="error-message">{{.Error}}</p>{{end}}
    {{if .Description}}<p class="description">{{.Description}}</p>{{end}}
    {{if .ReferenceImg}}<div class="reference"><img src="{{.ReferenceImg}}" alt="reference {{.SKU}}"></div>{{end}}
    {{range .Attempts}}
    <div class="attempt">
      <div>Attempt {{.Number}} <span class="score {{.ScoreClass}}">{{.Score}}</span></div>
      {{if .Image}}<img src="{{.Image}}" alt="attempt {{.Number}}">{{end}}
      <ul class="verdicts">
        {{range .Passing}}<li class="pass">{{.}}</li>{{end}}
        {{range .Failing}}<li class="fail">{{.}}</li>{{end}}
      </ul>
    </div>
    {{end}}
  </details>
</div>
{{end}}
</body>
</html>
`))
