package email

import "html/template"

const baseStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2563eb; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2563eb; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #2563eb; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .quote { border-left: 3px solid #2563eb; padding-left: 12px; color: #555; }`

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>` + baseStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Thank you for signing up. Please verify your email address to activate your agency account.</p>
    <p><a href="{{.VerificationURL}}" class="button">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.VerificationURL}}</p>
    <p>This verification link will expire in 24 hours.</p>
    <div class="footer"><p>If you didn't create an account with {{.AppName}}, you can safely ignore this email.</p></div>
</body>
</html>`))

var passwordResetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>` + baseStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password. Click the button below to create a new password:</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ResetURL}}</p>
    <div class="warning"><strong>Important:</strong> This reset link will expire in 1 hour.</div>
    <div class="footer"><p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p></div>
</body>
</html>`))

var newLeadTemplate = template.Must(template.New("lead").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New lead</title>
    <style>` + baseStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>New lead from {{.ChatbotName}}</h2>
    <p>Hi {{.CreatorName}},</p>
    <p><strong>{{.VisitorName}}</strong> ({{.VisitorEmail}}) left their details while touring.</p>
    {{if .QuestionAsked}}<p class="quote">{{.QuestionAsked}}</p>{{end}}
    <p>Lead score: {{.LeadScore}}</p>
    <p><a href="{{.DashboardURL}}" class="button">Open leads</a></p>
</body>
</html>`))

var newRequestTemplate = template.Must(template.New("request").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New change request</title>
    <style>` + baseStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>{{.Title}}</h2>
    <p>Hi {{.CreatorName}},</p>
    <p>{{.ClientName}} submitted a <strong>{{.Priority}}</strong> priority request for <em>{{.ProjectTitle}}</em>.</p>
    {{if .Description}}<p class="quote">{{.Description}}</p>{{end}}
    <p><a href="{{.DashboardURL}}" class="button">Review request</a></p>
</body>
</html>`))
