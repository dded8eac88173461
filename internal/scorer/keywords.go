package scorer

import "regexp"

// The keyword lists below are part of the scorer's observable behavior:
// they are fixed per release so that identical text always produces an
// identical score. Matching is case-insensitive (input is lowercased
// before evaluation) and substring-based unless a regex says otherwise.

var codeKeywords = []string{
	"function", "func ", "class ", "def ", "import ",
	"const ", "let ", "var ", "return ",
	"async ", "await ", "struct ", "enum ", "interface ",
	"=>", "{}", ";", "```",
	"console.log", "print(",
	"select ", "insert ", "update ", "delete ", "create table",
}

var reasoningKeywords = []string{
	"prove", "proof", "derive", "derivation",
	"theorem", "lemma", "corollary", "axiom",
	"step by step", "step-by-step", "chain of thought",
	"because", "therefore", "implies",
	"formally", "mathematical", "logically",
	"contradiction", "induction", "hypothesis", "deduce",
}

var technicalKeywords = []string{
	"algorithm", "optimize", "architecture", "distributed",
	"kubernetes", "microservice", "database", "infrastructure",
	"concurrent", "latency", "throughput", "scalable",
	"middleware", "authentication", "authorization", "encryption",
	"eigenvalue", "matrix", "tensor", "entropy", "bayesian",
}

var creativeKeywords = []string{
	"story", "poem", "compose", "brainstorm", "creative",
	"imagine", "write a", "fiction", "narrative",
	"character", "plot", "metaphor",
}

var simpleKeywords = []string{
	"what is", "define", "translate", "hello", "hi ", "hey",
	"thanks", "thank you", "yes or no", "true or false",
	"capital of", "how old", "who is", "when was", "meaning of",
}

var imperativeKeywords = []string{
	"write", "create", "implement", "design", "develop",
	"build", "construct", "generate", "deploy", "configure",
	"set up", "refactor", "migrate", "integrate",
	"analyze", "analyse", "compare",
}

var constraintKeywords = []string{
	"must", "should not", "shouldn't", "at most", "at least",
	"exactly", "within", "no more than", "under",
	"o(", "maximum", "minimum", "limit", "budget", "constraint",
}

var outputFormatKeywords = []string{
	"json", "yaml", "xml", "table", "csv", "markdown", "schema",
	"format as", "structured", "output as",
}

var referenceKeywords = []string{
	"http://", "https://", "according to", "the docs", "the api",
	"as described in", "refer to", "see above", "the previous",
	"cited", "citation", "attached", "mentioned",
}

var negationKeywords = []string{
	"not", "no ", "never", "without", "don't", "do not",
	"avoid", "except", "exclude", "must not", "shouldn't",
}

var domainKeywords = []string{
	"quantum", "fpga", "vlsi", "risc-v", "asic", "photonics",
	"genomics", "proteomics", "topological", "homomorphic",
	"zero-knowledge", "lattice-based",
	"statute", "jurisdiction", "plaintiff", "tort",
	"diagnosis", "pathology", "pharmacology", "prognosis",
	"derivative", "arbitrage", "liquidity", "volatility",
}

var agenticKeywords = []string{
	"read file", "read the file", "look at", "check the", "open the",
	"edit", "modify", "update the", "change the", "write to",
	"create file", "execute", "install", "compile",
	"then call", "use the", "plan and execute",
	"after that", "and also", "once done", "step 1", "step 2",
	"fix", "debug", "until it works", "keep trying",
	"iterate", "make sure", "verify", "confirm",
}

// Compiled once at package init.
var (
	reMultiStep    = regexp.MustCompile(`first\b.*\bthen\b|\bstep\s+\d|\bfinally\b`)
	reNumberedList = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)
	reConnective   = regexp.MustCompile(`\bthen\b|after that|followed by|subsequently`)
)
