package prompts

// EmptyResponseFallback is the user-facing reply when the model ends a
// turn without any text.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."
