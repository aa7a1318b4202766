package email

const (
	subjectLeadOfferFmt        = "Novo lead: %s"
	subjectLeadAutoAssignedFmt = "Lead atribuído: %s"
	subjectLeadLost            = "Lead expirado por prazo de atendimento"
	subjectClientAccepted      = "Um corretor assumiu seu atendimento"
	subjectLeadExhaustedFmt    = "Alerta: lead %d sem corretor disponível"
)
