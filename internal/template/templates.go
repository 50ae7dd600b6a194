package template

const notificationSubject = `{{.title}}`

const notificationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2 style="margin-bottom: 4px;">{{.title}}</h2>
  {{if .priority}}<p style="color: #7b8794; margin-top: 0;">{{.priority}} · {{humanize .category}}</p>{{end}}
  <p>{{.message}}</p>
  {{with .action}}<p><a href="{{.url}}" style="background: #2563eb; color: #fff; padding: 8px 14px; text-decoration: none; border-radius: 4px;">{{.label}}</a></p>{{end}}
  {{if .recipientName}}<p style="color: #7b8794; font-size: 12px;">Sent to {{.recipientName}}</p>{{end}}
</body>
</html>`

const notificationText = `{{.title}}
{{if .priority}}{{.priority}} - {{humanize .category}}
{{end}}
{{.message}}
{{with .action}}
{{.label}}: {{.url}}
{{end}}`

const digestSubject = `Your {{lower .frequency}} digest ({{.count}} {{plural .count "notification" "notifications"}})`

const digestHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2>Your {{lower .frequency}} digest</h2>
  <p>{{if .recipientName}}Hi {{.recipientName}}, y{{else}}Y{{end}}ou have {{.count}} {{plural .count "notification" "notifications"}}.</p>
  {{range .groups}}
  <h3 style="border-bottom: 1px solid #e4e7eb;">{{humanize .category}} ({{len .notifications}})</h3>
  <ul>
    {{range .notifications}}<li><strong>{{.title}}</strong> <span style="color: #7b8794;">{{.priority}} · {{datetime .createdAt}}</span><br>{{.message}}</li>
    {{end}}
  </ul>
  {{end}}
</body>
</html>`

const digestText = `Your {{lower .frequency}} digest: {{.count}} {{plural .count "notification" "notifications"}}
{{range .groups}}
== {{humanize .category}} ({{len .notifications}}) ==
{{range .notifications}}- [{{.priority}}] {{.title}} ({{datetime .createdAt}})
  {{.message}}
{{end}}{{end}}`
