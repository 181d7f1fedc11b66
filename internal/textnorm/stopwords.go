package textnorm

// english is the NLTK English stopword list restricted to its alphabetic
// entries; contractions never survive tokenization so they are not listed.
var english = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "your",
		"yours", "yourself", "yourselves", "he", "him", "his", "himself", "she", "her", "hers",
		"herself", "it", "its", "itself", "they", "them", "their", "theirs", "themselves", "what",
		"which", "who", "whom", "this", "that", "these", "those", "am", "is", "are",
		"was", "were", "be", "been", "being", "have", "has", "had", "having", "do",
		"does", "did", "doing", "a", "an", "the", "and", "but", "if", "or",
		"because", "as", "until", "while", "of", "at", "by", "for", "with", "about",
		"against", "between", "into", "through", "during", "before", "after", "above", "below", "to",
		"from", "up", "down", "in", "out", "on", "off", "over", "under", "again",
		"further", "then", "once", "here", "there", "when", "where", "why", "how", "all",
		"any", "both", "each", "few", "more", "most", "other", "some", "such", "no",
		"nor", "not", "only", "own", "same", "so", "than", "too", "very", "s",
		"t", "can", "will", "just", "don", "should", "now", "d", "ll", "m",
		"o", "re", "ve", "y", "ain", "aren", "couldn", "didn", "doesn", "hadn",
		"hasn", "haven", "isn", "ma", "mightn", "mustn", "needn", "shan", "shouldn", "wasn",
		"weren", "won", "wouldn",
	} {
		english[w] = struct{}{}
	}
}

// IsStopword reports whether the lower-cased word is an English stopword.
func IsStopword(word string) bool {
	_, ok := english[word]
	return ok
}
