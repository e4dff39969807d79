package insight

import (
	"strings"
	"text/template"
)

// systemPrompt is sent with every call; the user turn carries the task.
const systemPrompt = `Você é um analista de relacionamento com clientes que atende pelo WhatsApp. Responda sempre com um único objeto JSON válido, sem texto antes ou depois.`

const analysisPrompt = `Analise esta conversa de WhatsApp e retorne insights em JSON:

CONVERSA:
{{.Conversation}}

Retorne em JSON:
{
  "sentiment": "positive | negative | neutral",
  "tone": "friendly | professional | urgent | casual",
  "intent": "inquiry | complaint | purchase | support | other",
  "key_topics": ["tópico1", "tópico2"],
  "customer_mood": "satisfeito | neutro | frustrado | ansioso | empolgado",
  "urgency_level": "high | medium | low",
  "sales_stage": "prospecting | qualification | proposal | negotiation | closing | post_sale",
  "next_best_action": "descrição da melhor próxima ação",
  "summary": "resumo executivo da conversa em 2-3 frases"
}`

const stylePrompt = `Analise as mensagens abaixo e extraia o estilo de comunicação desta pessoa:

MENSAGENS:
{{range $i, $m := .Samples}}{{inc $i}}. {{$m}}
{{end}}
Retorne em JSON:
{
  "writing_style": "descrição do estilo (formal/informal/técnico/etc)",
  "common_expressions": ["expressões frequentes"],
  "tone": "tom predominante (amigável/profissional/casual)",
  "message_length": "preferência de tamanho (curto/médio/longo)",
  "emoji_usage": "uso de emojis (frequente/moderado/raro/nunca)",
  "punctuation_style": "estilo de pontuação",
  "greeting_style": "como costuma cumprimentar",
  "closing_style": "como costuma despedir"
}`

const generatePrompt = `Você escreve mensagens no estilo da pessoa.

ESTILO DA PESSOA:
{{.Style}}

HISTÓRICO DA CONVERSA:
{{.Conversation}}

OBJETIVO DA MENSAGEM: {{.Intent}}
{{if .Points}}
PONTOS ESPECÍFICOS A MENCIONAR:
{{range .Points}}- {{.}}
{{end}}{{end}}
INSTRUÇÕES:
1. Escreva UMA mensagem natural que pareça ter sido escrita pela pessoa
2. Mantenha o tom e o estilo exatamente como ela escreveria
3. Use as expressões e emojis que ela costuma usar
4. Respeite o tamanho médio das mensagens dela
5. Mencione os pontos específicos de forma orgânica

Retorne em JSON:
{
  "message": "a mensagem completa",
  "confidence": 0.95,
  "reasoning": "breve explicação do por que esta mensagem parece natural"
}`

const suggestPrompt = `Analise o perfil do contato e a conversa para sugerir a próxima melhor ação.

PERFIL DO CONTATO:
{{.Contact}}

ANÁLISE DA CONVERSA:
{{.Analysis}}

Retorne em JSON:
{
  "action_type": "send_message | schedule_call | send_proposal | follow_up | wait",
  "priority": "high | medium | low",
  "timing": "agora | em 2 horas | amanhã | próxima semana",
  "reasoning": "por que esta é a melhor ação agora",
  "message_intent": "se action é send_message, qual o objetivo",
  "suggested_content": "sugestão do que dizer/fazer",
  "expected_outcome": "resultado esperado desta ação"
}`

const categorizePrompt = `Analise o perfil e as mensagens para categorizar este contato.

DADOS DO CONTATO:
{{.Contact}}

ÚLTIMAS MENSAGENS:
{{.Conversation}}

Retorne em JSON:
{
  "customer_type": "lead | prospect | active_customer | inactive | vip",
  "interest_level": "high | medium | low",
  "buying_stage": "awareness | consideration | decision | post_purchase",
  "tags": ["tag1", "tag2", "tag3"],
  "lifetime_value_prediction": "alto | médio | baixo",
  "churn_risk": "alto | médio | baixo"
}`

const entitiesPrompt = `Extraia entidades importantes desta mensagem:

MENSAGEM: {{printf "%q" .Message}}

Retorne em JSON:
{
  "values": [{"amount": 100, "currency": "BRL", "context": "preço mencionado"}],
  "products": ["produto1", "produto2"],
  "dates": [{"date": "2025-01-15", "context": "reunião agendada"}],
  "people": ["nome1", "nome2"],
  "companies": ["empresa1"],
  "locations": ["local1"],
  "actions": [{"action": "agendar reunião", "deadline": "próxima semana"}]
}`

var templates = func() *template.Template {
	funcs := template.FuncMap{"inc": func(i int) int { return i + 1 }}
	t := template.New("insight").Funcs(funcs)
	template.Must(t.New("analysis").Parse(analysisPrompt))
	template.Must(t.New("style").Parse(stylePrompt))
	template.Must(t.New("generate").Parse(generatePrompt))
	template.Must(t.New("suggest").Parse(suggestPrompt))
	template.Must(t.New("categorize").Parse(categorizePrompt))
	template.Must(t.New("entities").Parse(entitiesPrompt))
	return t
}()

func render(name string, data any) (string, error) {
	var buf strings.Builder
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
