package scanner

import "fmt"

// Operator-facing messages.
const (
	stepPointRG        = "Aponte a câmera para o RG. A leitura será automática."
	stepPointTag       = "Aponte a câmera para a etiqueta. A leitura será automática."
	stepTagAttemptDone = "Tentativa automática da etiqueta concluída."

	msgCameraUnavailable = "Não foi possível acessar a câmera."
	msgCameraNotReady    = "A câmera ainda não está pronta. Aguarde e tente novamente."
	msgReadFailed        = "Falha ao processar a leitura da câmera."
	msgBackendLoad       = "Não foi possível carregar o OCR. Tente novamente."
	msgRGNotFound        = "Não foi possível identificar o RG nesta tentativa."
	msgTagNotFound       = "Não foi possível identificar a etiqueta nesta tentativa."
	msgTagMissed         = `Etiqueta não identificada nesta tentativa. Clique em "Tentar novamente" ou em "Próximo".`
	msgNoValidRG         = "Nenhum RG válido foi identificado. Verifique novamente."
	msgNoValidTag        = `Nenhuma etiqueta válida foi identificada. Verifique novamente ou clique em "Próximo".`
	msgRGRequiredForTag  = "RG é obrigatório. Confirme o RG antes da etiqueta."
	msgRGRequiredToSkip  = "RG é obrigatório. Confirme o RG antes de avançar."
	msgFormWriteFailed   = "Não foi possível preencher o formulário."
)

func stepReading(label string) string {
	return fmt.Sprintf("Lendo %s...", label)
}

func stepRGDetected(mode Mode, rg string) string {
	if mode == ModeAllocationLookup {
		return fmt.Sprintf("RG identificado: %s. Confirme para consultar as alocações ou verifique novamente.", rg)
	}
	return fmt.Sprintf("RG identificado: %s. Confirme para preencher ou verifique novamente.", rg)
}

func stepTagDetected(tag string) string {
	return fmt.Sprintf("Etiqueta identificada: %s. Confirme ou verifique novamente.", tag)
}

func stepRGConfirmed(rg string) string {
	return fmt.Sprintf(`RG confirmado: %s. Agora identifique a etiqueta ou clique em "Próximo".`, rg)
}

func stepLookingUp(rg string) string {
	return fmt.Sprintf("RG confirmado: %s. Consultando alocações...", rg)
}

func stepCompleted(rg, tag string) string {
	if tag == "" {
		return fmt.Sprintf("Leitura concluída. RG: %s. Etiqueta não informada.", rg)
	}
	return fmt.Sprintf("Leitura concluída. RG: %s | Etiqueta: %s", rg, tag)
}
