package chat

// condenseSystemPrompt rewrites a follow-up question into a standalone
// one before retrieval, so history references resolve to searchable text.
const condenseSystemPrompt = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, " +
	"formulate a standalone question which can be understood " +
	"without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is."

// answerSystemPrompt frames the final answer around retrieved context.
// The retrieved chunks are appended after the blank line.
const answerSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer " +
	"the question. If you don't know the answer, say that you " +
	"don't know. Use three sentences maximum and keep the " +
	"answer concise.\n\n"
