package enums

// WizardStep tracks progress through the admin add-product conversation.
type WizardStep string

const (
	WizardStepCode   WizardStep = "code"
	WizardStepName   WizardStep = "name"
	WizardStepPrice  WizardStep = "price"
	WizardStepAccess WizardStep = "access"
	WizardStepImage  WizardStep = "image"
)
