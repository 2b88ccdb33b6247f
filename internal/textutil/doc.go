// Package textutil provides text folding, tokenization, and similarity
// helpers for comparing book titles and author names across sources.
//
// The primary use cases are:
//   - Folding case and diacritics so "Ungekürzt" and "ungekurzt" compare equal
//   - Creating token-based fingerprints and computing cosine similarity
//   - Set overlap measures (Dice coefficient, shared token counts)
//
// Tokenization folds the text, then splits on anything that is not a letter
// or digit.
package textutil
