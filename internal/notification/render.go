package notification

import "fmt"

type rendered struct {
	Subject string
	Text    string
}

// render produces the subject and plain-text body for a template. Bodies are
// deliberately short; rich HTML lives with the provider's hosted templates.
func render(req Request) rendered {
	name := req.Recipient.Name
	if name == "" {
		name = "Storyteller"
	}
	title := req.Data["story_title"]

	switch req.Template {
	case TemplateConsentGranted:
		return rendered{
			Subject: fmt.Sprintf("Consent Recorded: %s", title),
			Text: fmt.Sprintf("Kia ora %s,\n\nConsent has been recorded for your story %q. "+
				"You can review or withdraw it at any time from your dashboard.\n", name, title),
		}
	case TemplateConsentWithdrawal:
		return rendered{
			Subject: fmt.Sprintf("Consent Withdrawn: %s", title),
			Text: fmt.Sprintf("Kia ora %s,\n\nYour consent withdrawal for %q has been processed. "+
				"The story is no longer eligible for distribution.\n", name, title),
		}
	case TemplateStoryShared:
		return rendered{
			Subject: fmt.Sprintf("Your Story Was Shared: %s", title),
			Text: fmt.Sprintf("Kia ora %s,\n\nYour story %q has been shared to %s.\n",
				name, title, req.Data["platform"]),
		}
	case TemplateDistributionRevoked:
		return rendered{
			Subject: fmt.Sprintf("Distribution Revoked: %s", title),
			Text: fmt.Sprintf("Kia ora %s,\n\nDistribution of %q has been revoked. Reason: %s\n",
				name, title, req.Data["reason"]),
		}
	case TemplateDeletionReceived:
		return rendered{
			Subject: "We Received Your Data Request",
			Text: fmt.Sprintf("Kia ora %s,\n\nWe received your %s request. "+
				"Please confirm it using the verification link sent separately.\n",
				name, req.Data["request_type"]),
		}
	case TemplateDeletionCompleted:
		return rendered{
			Subject: "Your Data Request Is Complete",
			Text: fmt.Sprintf("Kia ora %s,\n\nYour %s request has been completed.\n",
				name, req.Data["request_type"]),
		}
	case TemplateDataExportReady:
		return rendered{
			Subject: "Your Data Export Is Ready",
			Text: fmt.Sprintf("Kia ora %s,\n\nYour data export is ready for download:\n\n%s\n\n"+
				"The link expires %s.\n", name, req.Data["download_url"], req.Data["expires_at"]),
		}
	default:
		return rendered{
			Subject: "Notification from StoryLedger",
			Text:    fmt.Sprintf("Kia ora %s,\n\nYou have a new notification.\n", name),
		}
	}
}
