// Package prompts contains the prompt and notification text Steward
// sends to models and to the owner.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and can be validated by
// tests. Each prompt category gets its own file with an exported function
// that accepts the dynamic parts and returns the interpolated string.
package prompts
