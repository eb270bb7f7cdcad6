package scanning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		doc     Document
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewOllama(server.URL()+"/", "llava:13b")
		doc = Document{Data: tinyPNG(), MIMEType: "image/png", Filename: "receipt.png"}
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends the prompt, image and schema and parses the answer", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			ghttp.VerifyContentType("application/json"),
			func(_ http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				body, err := io.ReadAll(r.Body)
				Expect(err).NotTo(HaveOccurred())

				var req ollamaChatRequest
				Expect(json.Unmarshal(body, &req)).To(Succeed())
				Expect(req.Model).To(Equal("llava:13b"))
				Expect(req.Stream).To(BeFalse())
				Expect(req.Messages).To(HaveLen(1))
				Expect(req.Messages[0].Content).To(Equal(Prompt))
				Expect(req.Messages[0].Images).To(HaveLen(1))
				Expect(string(req.Format)).To(ContainSubstring(`"additionalProperties":false`))
				Expect(string(req.Format)).To(ContainSubstring(`"Materials"`))
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"done": true,
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"vendor":"Acme Fuel Co","amount":125.5,"date":"2025-03-01","tax":10.25,"confidence":88,"category":"Fuel"}`,
				},
			}),
		))

		res, err := scanner.Scan(context.Background(), doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Vendor).To(Equal("Acme Fuel Co"))
		Expect(res.Amount.String()).To(Equal("125.5"))
		Expect(scanner.Model()).To(Equal("llava:13b"))
	})

	It("returns ErrEmptyResponse for a blank answer", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
			"done":    true,
			"message": map[string]any{"role": "assistant", "content": ""},
		}))

		_, err := scanner.Scan(context.Background(), doc)
		Expect(err).To(MatchError(ErrEmptyResponse))
	})

	It("surfaces API errors", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model not found"}`))

		_, err := scanner.Scan(context.Background(), doc)
		Expect(err).To(MatchError(ContainSubstring("ollama API error (status 404)")))
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
		doc     Document
	)

	chatResponse := func(content string) map[string]any {
		return map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		scanner, err = NewOpenAI("sk-test", "", server.URL()+"/v1")
		Expect(err).NotTo(HaveOccurred())
		doc = Document{Data: []byte("jpeg-bytes"), MIMEType: "image/jpeg"}
	})

	AfterEach(func() {
		server.Close()
	})

	It("requests strict structured output", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
			func(_ http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				var body map[string]any
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["model"]).To(Equal(DefaultOpenAIModel))

				format := body["response_format"].(map[string]any)
				Expect(format["type"]).To(Equal("json_schema"))
				schema := format["json_schema"].(map[string]any)
				Expect(schema["name"]).To(Equal("receipt_extraction"))
				Expect(schema["strict"]).To(BeTrue())

				messages := body["messages"].([]any)
				parts := messages[0].(map[string]any)["content"].([]any)
				Expect(parts).To(HaveLen(2))
				image := parts[1].(map[string]any)["image_url"].(map[string]any)
				Expect(image["url"]).To(HavePrefix("data:image/jpeg;base64,"))
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, chatResponse(
				`{"vendor":"Tool Barn","amount":300,"date":"2025-03-15","tax":24,"confidence":95,"category":"Equipment"}`,
			)),
		))

		res, err := scanner.Scan(context.Background(), doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Vendor).To(Equal("Tool Barn"))
		Expect(res.Tax.String()).To(Equal("24"))
	})

	It("returns ErrEmptyResponse when the model answers with nothing", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatResponse("")))

		_, err := scanner.Scan(context.Background(), doc)
		Expect(err).To(MatchError(ErrEmptyResponse))
	})

	It("wraps provider errors", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"message": "bad key", "type": "invalid_request_error"},
		}))

		_, err := scanner.Scan(context.Background(), doc)
		Expect(err).To(MatchError(ContainSubstring("calling openai API")))
	})

	It("requires an API key", func() {
		_, err := NewOpenAI("", "", "")
		Expect(err).To(HaveOccurred())
	})
})
