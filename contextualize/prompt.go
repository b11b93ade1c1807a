package contextualize

import "strings"

// Prompt is the template sent to the language model.
// {chunk} and {document} are replaced verbatim.
const Prompt = `
Here is the chunk we want to situate within the whole document:
<chunk>
{chunk}
</chunk>
 
Here is the content of the whole document:
<document>
{document}
</document>
 
Please provide a short, succinct context to situate this chunk within the overall document to improve search retrieval. Respond only with the context.
`

// Model settings used for every contextualization call.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 300
)

// BuildPrompt fills the template with a chunk and its document text.
func BuildPrompt(chunkText, documentText string) string {
	// single pass so placeholders inside the texts are left alone
	return strings.NewReplacer("{chunk}", chunkText, "{document}", documentText).Replace(Prompt)
}
