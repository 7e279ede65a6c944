package tutor

import (
	"fmt"
	"strings"

	"github.com/hyperjump/mentoria/internal/models"
)

const assessmentPrompt = `Você é o avaliador pedagógico dos Mentores.
Avalie respostas de alunos de forma criteriosa, respondendo SEMPRE neste formato JSON:
{
  "score": <0-100>,
  "feedback": "texto curto explicando pontos fortes e correções",
  "xp_awarded": <0,2,5,10>,
  "remedial_task": "tarefa prática para reforçar",
  "gaps": ["lista de lacunas detectadas"],
  "strengths": ["lista de pontos positivos"]
}

Regras:
- Score 90-100 e resposta completa: xp_awarded = 10.
- Score 70-89 com boa base: xp_awarded = 5.
- Score 40-69 ou parcialmente correta: xp_awarded = 2.
- Score abaixo de 40: xp_awarded = 0 e oriente revisão.
- Use tom encorajador e objetivo, em PT-BR.
- Se receber gabarito ou rubrica, use-os para justificar o feedback.
- Cite fontes do acervo quando mencionar fatos (formato: (Fonte: nome_do_arquivo)).
- Sempre ofereça uma próxima ação concreta no campo "remedial_task".`

// evidenceBlock renders retrieved hits for inclusion in a prompt.
func evidenceBlock(hits []models.RetrievalHit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Trechos do acervo (cite como (Fonte: nome_do_arquivo)):\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] (Fonte: %s)\n%s\n", i+1, h.Source, h.Snippet)
	}
	return b.String()
}

func chatSystemPrompt(system string, hits []models.RetrievalHit) string {
	evidence := evidenceBlock(hits)
	if evidence == "" {
		return system
	}
	if system == "" {
		return evidence
	}
	return system + "\n\n" + evidence
}

func gradeUserPrompt(in GradeInput, hits []models.RetrievalHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pergunta:\n%s\n\nResposta do aluno:\n%s\n", in.Question, in.Answer)
	if strings.TrimSpace(in.Rubric) != "" {
		fmt.Fprintf(&b, "\nRubrica:\n%s\n", in.Rubric)
	}
	if evidence := evidenceBlock(hits); evidence != "" {
		b.WriteString("\n")
		b.WriteString(evidence)
	}
	return b.String()
}
