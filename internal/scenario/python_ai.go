package scenario

import "strings"

func init() {
	register(pythonAIStdlib())
}

// pythonAIStdlib is the reference scenario: a tiny character-level Markov
// text model as a stdlib-only Python package, validated by a fixed pytest
// suite.
func pythonAIStdlib() *Scenario {
	return &Scenario{
		Name:        "python-ai-stdlib",
		Description: "stdlib-only Python Markov text model with a CLI, validated by pytest",
		System: strings.TrimSpace(`
You are a code generator. You emit exactly one JSON object describing a set
of files and nothing else: no prose, no markdown fences. Every file content
must be complete; never elide parts of a file.`),
		Prompt: strings.TrimSpace(`
Produce a complete, stdlib-only Python project with this layout:

- mini_ai/markov.py defines class MarkovChain:
  * MarkovChain(order=1); order < 1 raises ValueError
  * train(text) builds character-level transition counts for the given order
  * generate(length, seed=None, random_seed=None) returns generated text;
    for a fixed random_seed the output must be fully deterministic, so use a
    dedicated random.Random(random_seed) and iterate candidates in sorted
    order
  * to_dict() / from_dict(data) round-trip the model through plain JSON types
- mini_ai/cli.py is runnable as a script and uses argparse with two
  subcommands:
  * train --input <text file> --output <model json> [--order N]
  * generate --model <model json> [--length N] [--seed TEXT] [--random-seed N]
  It imports the chain as "from mini_ai.markov import MarkovChain". The script
  is executed as "python mini_ai/cli.py" from the project root, so before that
  import it must insert the parent of the file's directory into sys.path
  (for example sys.path.insert(0, str(Path(__file__).resolve().parent.parent))).

Respond with a JSON object: {"mode": "full", "files": [{"path": ..., "content": ...}, ...], "notes": ...}.
Include every file listed above with complete content.`),
		RequiredFiles: []string{"mini_ai/markov.py", "mini_ai/cli.py"},
		ContractChecks: []ContractCheck{
			{
				Path:        "mini_ai/markov.py",
				MustContain: "class MarkovChain",
				Diagnostic:  "mini_ai/markov.py does not define class MarkovChain",
			},
			{
				Path:        "mini_ai/cli.py",
				MustContain: "argparse",
				Diagnostic:  "mini_ai/cli.py does not build an argparse interface",
			},
		},
		OracleFiles: map[string]string{
			"tests/conftest.py":    oracleConftest,
			"tests/test_oracle.py": oracleTests,
		},
		Commands: []Command{
			{Name: "compile", Argv: []string{"python3", "-m", "compileall", "-q", "mini_ai"}},
			{Name: "pytest", Argv: []string{"python3", "-m", "pytest", "-q", "tests"}},
		},
		CanonicalFiles: map[string]string{
			"mini_ai/__init__.py": "",
			"mini_ai/markov.py":   canonicalMarkov,
			"mini_ai/cli.py":      canonicalCLI,
		},
		TargetedPatches: []TargetedPatch{
			{
				Name:      "package-init",
				Signature: "No module named 'mini_ai'",
				Path:      "mini_ai/__init__.py",
				Content:   "",
			},
			{
				Name:      "package-relative-import",
				Signature: "No module named 'markov'",
				Path:      "mini_ai/cli.py",
				Find:      "from markov import MarkovChain",
				Replace: "import sys\n" +
					"from pathlib import Path\n" +
					"sys.path.insert(0, str(Path(__file__).resolve().parent.parent))\n" +
					"from mini_ai.markov import MarkovChain",
			},
		},
		ChecklistHints: map[string]string{
			"No module named": "Import the chain as `from mini_ai.markov import MarkovChain` and keep every module inside the mini_ai package. In cli.py, insert the parent of the file's directory into sys.path before that import so the script form works.",
			"ValueError":      "MarkovChain(order=0) must raise ValueError before any other work happens in __init__.",
			"random_seed":     "generate() must be deterministic for a fixed random_seed: build a dedicated random.Random(random_seed) and iterate transition candidates in sorted order.",
			"--help":          "mini_ai/cli.py must be runnable as a script (python mini_ai/cli.py --help) and list both the train and generate subcommands; put the package parent on sys.path before importing mini_ai.markov.",
		},
	}
}

const oracleConftest = `import sys
from pathlib import Path

sys.path.insert(0, str(Path(__file__).resolve().parent.parent))
`

const oracleTests = `import json
import subprocess
import sys
from pathlib import Path

import pytest

from mini_ai.markov import MarkovChain


def test_order_must_be_positive():
    with pytest.raises(ValueError):
        MarkovChain(order=0)


def test_train_and_generate_deterministic():
    chain = MarkovChain(order=2)
    chain.train("abcabcabcabc")
    first = chain.generate(24, seed="ab", random_seed=7)
    second = chain.generate(24, seed="ab", random_seed=7)
    assert first == second
    assert len(first) > 0


def test_round_trip():
    chain = MarkovChain(order=1)
    chain.train("hello world hello")
    clone = MarkovChain.from_dict(json.loads(json.dumps(chain.to_dict())))
    assert clone.order == chain.order
    assert clone.generate(10, random_seed=3) == chain.generate(10, random_seed=3)


def test_cli_help_lists_commands():
    proc = subprocess.run(
        [sys.executable, "mini_ai/cli.py", "--help"],
        capture_output=True,
        text=True,
        cwd=Path(__file__).resolve().parent.parent,
    )
    assert proc.returncode == 0
    assert "train" in proc.stdout
    assert "generate" in proc.stdout
`

const canonicalMarkov = `import random


class MarkovChain:
    def __init__(self, order=1):
        if order < 1:
            raise ValueError("order must be >= 1")
        self.order = order
        self.transitions = {}

    def train(self, text):
        if len(text) <= self.order:
            return
        for i in range(len(text) - self.order):
            context = text[i:i + self.order]
            nxt = text[i + self.order]
            bucket = self.transitions.setdefault(context, {})
            bucket[nxt] = bucket.get(nxt, 0) + 1

    def generate(self, length, seed=None, random_seed=None):
        rng = random.Random(random_seed)
        if not self.transitions:
            return ""
        if seed:
            context = seed[-self.order:]
        else:
            context = rng.choice(sorted(self.transitions))
        out = []
        for _ in range(length):
            bucket = self.transitions.get(context)
            if not bucket:
                break
            chars = sorted(bucket)
            weights = [bucket[c] for c in chars]
            nxt = rng.choices(chars, weights=weights)[0]
            out.append(nxt)
            context = (context + nxt)[-self.order:]
        return "".join(out)

    def to_dict(self):
        return {"order": self.order, "transitions": self.transitions}

    @staticmethod
    def from_dict(data):
        chain = MarkovChain(order=data["order"])
        chain.transitions = {
            context: dict(bucket) for context, bucket in data["transitions"].items()
        }
        return chain
`

const canonicalCLI = `import argparse
import json
import sys
from pathlib import Path

if __package__ in (None, ""):
    sys.path.insert(0, str(Path(__file__).resolve().parent.parent))

from mini_ai.markov import MarkovChain


def cmd_train(args):
    with open(args.input, "r", encoding="utf-8") as fh:
        text = fh.read()
    chain = MarkovChain(order=args.order)
    chain.train(text)
    with open(args.output, "w", encoding="utf-8") as fh:
        json.dump(chain.to_dict(), fh)
    print("model written to " + args.output)


def cmd_generate(args):
    with open(args.model, "r", encoding="utf-8") as fh:
        chain = MarkovChain.from_dict(json.load(fh))
    print(chain.generate(args.length, seed=args.seed, random_seed=args.random_seed))


def main(argv=None):
    parser = argparse.ArgumentParser(
        prog="mini_ai", description="Tiny character-level Markov text model"
    )
    sub = parser.add_subparsers(dest="command", required=True)

    train = sub.add_parser("train", help="Train a model from a text file")
    train.add_argument("--input", required=True)
    train.add_argument("--output", required=True)
    train.add_argument("--order", type=int, default=2)
    train.set_defaults(func=cmd_train)

    gen = sub.add_parser("generate", help="Generate text from a trained model")
    gen.add_argument("--model", required=True)
    gen.add_argument("--length", type=int, default=200)
    gen.add_argument("--seed", default=None)
    gen.add_argument("--random-seed", type=int, default=None, dest="random_seed")
    gen.set_defaults(func=cmd_generate)

    args = parser.parse_args(argv)
    args.func(args)


if __name__ == "__main__":
    main()
`
