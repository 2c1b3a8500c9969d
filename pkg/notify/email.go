package notify

import (
	"bytes"
	"context"
	"html/template"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailSender sends transactional mail through Amazon SES v2.
type EmailSender struct {
	client    *sesv2.Client
	fromEmail string
	templates *TemplateManager
}

// NewEmailSender creates a sender for the given region and from-address.
// Credentials are loaded from the environment.
func NewEmailSender(ctx context.Context, region, fromEmail string) (*EmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	tm, err := NewTemplateManager()
	if err != nil {
		return nil, err
	}
	return &EmailSender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		templates: tm,
	}, nil
}

func (s *EmailSender) send(ctx context.Context, to, subject, htmlContent string) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: &s.fromEmail,
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject, Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlContent, Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	_, err := s.client.SendEmail(ctx, input)
	return err
}

// SendRouteAssigned notifies a contributor that a route was assigned to them.
// Failures are logged, never returned to the lifecycle operation.
func (s *EmailSender) SendRouteAssigned(to, routeID string, stopCount int) {
	go func() {
		html, err := s.templates.RenderRouteAssigned(RouteAssignedData{RouteID: routeID, StopCount: stopCount})
		if err != nil {
			log.Printf("notify: render route-assigned email: %v", err)
			return
		}
		if err := s.send(context.Background(), to, "A delivery route was assigned to you", html); err != nil {
			log.Printf("notify: send route-assigned email to %s: %v", to, err)
		}
	}()
}

// SendReportResolved notifies the reporter about an administrative resolution.
func (s *EmailSender) SendReportResolved(to, deliveryRequestID, resolution string) {
	go func() {
		html, err := s.templates.RenderReportResolved(ReportResolvedData{DeliveryRequestID: deliveryRequestID, Resolution: resolution})
		if err != nil {
			log.Printf("notify: render report-resolved email: %v", err)
			return
		}
		if err := s.send(context.Background(), to, "Your delivery report was resolved", html); err != nil {
			log.Printf("notify: send report-resolved email to %s: %v", to, err)
		}
	}()
}

// TemplateManager holds the parsed email templates.
type TemplateManager struct {
	routeAssignedTmpl  *template.Template
	reportResolvedTmpl *template.Template
}

// NewTemplateManager parses all email templates at startup.
func NewTemplateManager() (*TemplateManager, error) {
	routeAssigned, err := template.New("routeAssigned").Parse(routeAssignedTemplate)
	if err != nil {
		return nil, err
	}
	reportResolved, err := template.New("reportResolved").Parse(reportResolvedTemplate)
	if err != nil {
		return nil, err
	}
	return &TemplateManager{
		routeAssignedTmpl:  routeAssigned,
		reportResolvedTmpl: reportResolved,
	}, nil
}

// RouteAssignedData fills the route-assigned template.
type RouteAssignedData struct {
	RouteID   string
	StopCount int
}

// ReportResolvedData fills the report-resolved template.
type ReportResolvedData struct {
	DeliveryRequestID string
	Resolution        string
}

func (tm *TemplateManager) RenderRouteAssigned(data RouteAssignedData) (string, error) {
	var body bytes.Buffer
	if err := tm.routeAssignedTmpl.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

func (tm *TemplateManager) RenderReportResolved(data ReportResolvedData) (string, error) {
	var body bytes.Buffer
	if err := tm.reportResolvedTmpl.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

const routeAssignedTemplate = `
<!DOCTYPE html>
<html>
<head>
	<title>Route Assigned</title>
</head>
<body style="font-family: Arial, sans-serif;">
	<h2>You picked up a delivery route</h2>
	<p>Route <strong>{{.RouteID}}</strong> with {{.StopCount}} stop(s) is now yours.</p>
	<p>Open the app to see the stop sequence and start the route.</p>
</body>
</html>
`

const reportResolvedTemplate = `
<!DOCTYPE html>
<html>
<head>
	<title>Report Resolved</title>
</head>
<body style="font-family: Arial, sans-serif;">
	<h2>Your report has been handled</h2>
	<p>The report on delivery request <strong>{{.DeliveryRequestID}}</strong> was resolved: {{.Resolution}}.</p>
</body>
</html>
`
