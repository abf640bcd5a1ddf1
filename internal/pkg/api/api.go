package api

const (
	// PrmFile is form file param name
	PrmFile = "file"
	// PrmLanguage is language hint form param
	PrmLanguage = "language"
	// PrmSpeakers is expected speaker count form param
	PrmSpeakers = "speakers"
)
