package agent

import "strings"

// Canned replies, user-facing in Spanish.
const (
	ReplyAlreadyProcessed = "Ya procesé ese mensaje. Si necesitás algo más, escribime de nuevo."

	ReplyFarewell = "¡Hasta luego! Cuidá mucho a tu mascota. Escribime cuando me necesites. 🐾"

	ReplyApology = "Perdón, tuve un problema procesando tu mensaje. ¿Podés intentarlo de nuevo en un momento?"

	ReplyClarification = "No logré resolver tu consulta con la información que tengo. ¿Podés contarme un poco más sobre lo que necesitás?"
)

// terminationKeywords end the conversation when found in the user text,
// case-insensitive.
var terminationKeywords = []string{
	"fin",
	"adios",
	"adiós",
	"chau",
	"hasta luego",
	"terminar",
	"salir",
	"bye",
	"goodbye",
}

// IsTermination reports whether the user text asks to end the session.
func IsTermination(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, keyword := range terminationKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
