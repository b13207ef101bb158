package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeDisplayNameEmpty       = "DISPLAY_NAME_EMPTY"
	CodeAnswerEmpty            = "ANSWER_EMPTY"
	CodeScoreOutOfRange        = "SCORE_OUT_OF_RANGE"
	CodeLevelOutOfRange        = "LEVEL_OUT_OF_RANGE"
	CodeTargetRoundsRange      = "TARGET_ROUNDS_OUT_OF_RANGE"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeParticipantUnknown     = "PARTICIPANT_UNKNOWN"
	CodeSelfEvaluation         = "SELF_EVALUATION"
	CodeEvaluationAlreadySet   = "EVALUATION_ALREADY_SET"
	CodeSessionAlreadyFinished = "SESSION_ALREADY_FINISHED"
	CodeSessionNotActive       = "SESSION_NOT_ACTIVE"
	CodeNotTurnHolder          = "NOT_TURN_HOLDER"
	CodePhaseMismatch          = "PHASE_MISMATCH"
	CodeRoundMismatch          = "ROUND_MISMATCH"
	CodeReportNotReady         = "REPORT_NOT_READY"
	CodeConflict               = "CONFLICT"
	CodeNotFound               = "NOT_FOUND"
	CodeSessionFull            = "SESSION_FULL"
	CodeJoinCodeInvalid        = "JOIN_CODE_INVALID"
	CodeVoteRoundStale         = "VOTE_ROUND_STALE"
	CodeVoteAlreadyCast        = "VOTE_ALREADY_CAST"
	CodePromptsExhausted       = "PROMPTS_EXHAUSTED"
	CodeRankingUnavailable     = "RANKING_UNAVAILABLE"
	CodeAnalysisUnavailable    = "ANALYSIS_UNAVAILABLE"
	CodeRateLimited            = "RATE_LIMITED"
	CodeUnavailable            = "UNAVAILABLE"
)

var enUS = map[Code]string{
	CodeInvalidArgument:        "The request is invalid.",
	CodeDisplayNameEmpty:       "Please enter a display name.",
	CodeAnswerEmpty:            "Please write an answer before submitting.",
	CodeScoreOutOfRange:        "Scores must be between 0 and 5.",
	CodeLevelOutOfRange:        "Level {{.Level}} is not available.",
	CodeTargetRoundsRange:      "A session needs between 1 and 50 rounds.",
	CodeUnauthenticated:        "Your session token is missing or expired.",
	CodeParticipantUnknown:     "You are not part of this session.",
	CodeSelfEvaluation:         "You cannot evaluate your own answer.",
	CodeEvaluationAlreadySet:   "This answer has already been evaluated.",
	CodeSessionAlreadyFinished: "This session has already finished.",
	CodeSessionNotActive:       "This session has not started yet.",
	CodeNotTurnHolder:          "It is not your turn.",
	CodePhaseMismatch:          "That action is not available right now.",
	CodeRoundMismatch:          "Round {{.Round}} is no longer current.",
	CodeReportNotReady:         "The report is available once the session finishes.",
	CodeConflict:               "Someone else acted first. Refreshing.",
	CodeNotFound:               "Session not found.",
	CodeSessionFull:            "This session already has two participants.",
	CodeJoinCodeInvalid:        "That join code does not match any open session.",
	CodeVoteRoundStale:         "That vote belongs to an earlier round. Please vote again.",
	CodeVoteAlreadyCast:        "You already voted this round.",
	CodePromptsExhausted:       "There are no questions left at this level.",
	CodeRankingUnavailable:     "Question ranking is unavailable.",
	CodeAnalysisUnavailable:    "The written analysis is unavailable right now.",
	CodeRateLimited:            "Too many requests. Slow down a little.",
	CodeUnavailable:            "The service is unavailable. Please retry.",
}

var es = map[Code]string{
	CodeInvalidArgument:        "La solicitud no es válida.",
	CodeDisplayNameEmpty:       "Escribe un nombre para mostrar.",
	CodeAnswerEmpty:            "Escribe una respuesta antes de enviarla.",
	CodeScoreOutOfRange:        "Las puntuaciones deben estar entre 0 y 5.",
	CodeLevelOutOfRange:        "El nivel {{.Level}} no está disponible.",
	CodeTargetRoundsRange:      "Una sesión necesita entre 1 y 50 rondas.",
	CodeUnauthenticated:        "Tu token de sesión falta o ha caducado.",
	CodeParticipantUnknown:     "No formas parte de esta sesión.",
	CodeSelfEvaluation:         "No puedes evaluar tu propia respuesta.",
	CodeEvaluationAlreadySet:   "Esta respuesta ya fue evaluada.",
	CodeSessionAlreadyFinished: "Esta sesión ya terminó.",
	CodeSessionNotActive:       "Esta sesión todavía no ha comenzado.",
	CodeNotTurnHolder:          "No es tu turno.",
	CodePhaseMismatch:          "Esa acción no está disponible ahora.",
	CodeRoundMismatch:          "La ronda {{.Round}} ya no es la actual.",
	CodeReportNotReady:         "El informe estará disponible cuando termine la sesión.",
	CodeConflict:               "Otra persona actuó primero. Actualizando.",
	CodeNotFound:               "Sesión no encontrada.",
	CodeSessionFull:            "Esta sesión ya tiene dos participantes.",
	CodeJoinCodeInvalid:        "Ese código no corresponde a ninguna sesión abierta.",
	CodeVoteRoundStale:         "Ese voto pertenece a una ronda anterior. Vota de nuevo.",
	CodeVoteAlreadyCast:        "Ya votaste en esta ronda.",
	CodePromptsExhausted:       "No quedan preguntas en este nivel.",
	CodeRankingUnavailable:     "La clasificación de preguntas no está disponible.",
	CodeAnalysisUnavailable:    "El análisis escrito no está disponible en este momento.",
	CodeRateLimited:            "Demasiadas solicitudes. Espera un momento.",
	CodeUnavailable:            "El servicio no está disponible. Inténtalo de nuevo.",
}
