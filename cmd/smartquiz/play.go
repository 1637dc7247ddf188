package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/quiz"
	"github.com/pavelanni/smartquiz/internal/review"
)

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play file",
		Short: "Take a quiz in the terminal",
		Long: `Take a quiz in the terminal. The file holds a raw LLM response; with
--generate it holds summary text that is sent to the LLM instead.

At each question type a-d to choose, n (or an empty line) for next,
p for back, q to quit.`,
		Args: cobra.ExactArgs(1),
		RunE: runPlay,
	}
	f := cmd.Flags()
	f.StringP("format", "f", string(model.FormatText), "Response format (text, json)")
	f.Bool("generate", false, "Treat the input as a summary and generate the quiz with the LLM")
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func runPlay(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if len(args) == 0 || args[0] == "-" {
		return errors.New("answers are read from stdin, so the input must be a file")
	}
	format, err := outputFormat(v)
	if err != nil {
		return err
	}
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	var gen quiz.Generator = quiz.GeneratorFunc(func(context.Context, string) (string, error) {
		return input, nil
	})
	if v.GetBool("generate") {
		client, err := newLLMClient(v, format)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		gen = client
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("llm-timeout"))
	defer cancel()

	sess := quiz.NewSession(input, quiz.ParserFor(format))
	if err := sess.Generate(ctx, gen); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, err := playSession(sess, bufio.NewScanner(cmd.InOrStdin()), out)
	if err != nil {
		return err
	}
	printReview(out, res)
	return nil
}

// playSession drives sess from line commands until it finishes.
func playSession(sess *quiz.Session, in *bufio.Scanner, out io.Writer) (model.QuizResult, error) {
	for {
		v := sess.View()
		if v.Status == model.StatusFinished {
			res, _ := sess.Result()
			return res, nil
		}
		if v.Status != model.StatusActive {
			return model.QuizResult{}, quiz.ErrNotActive
		}

		printQuestion(out, v)
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return model.QuizResult{}, err
			}
			return model.QuizResult{}, errors.New("quiz aborted: input closed")
		}

		switch cmd := strings.ToLower(strings.TrimSpace(in.Text())); cmd {
		case "q", "quit":
			sess.Abandon()
			return model.QuizResult{}, errors.New("quiz aborted")
		case "p", "prev", "back":
			_ = sess.Back()
		case "", "n", "next":
			if _, err := sess.Next(); errors.Is(err, quiz.ErrSelectionRequired) {
				fmt.Fprintln(out, "Please select an answer first.")
			}
		default:
			if err := sess.SelectAnswer(cmd); err != nil {
				fmt.Fprintf(out, "%q is not one of the options.\n", cmd)
			}
		}
	}
}

func printQuestion(out io.Writer, v quiz.View) {
	fmt.Fprintf(out, "\nQuestion %d of %d\n%s\n", v.Index+1, v.Total, v.Question.Prompt)
	for i, opt := range v.Question.Options {
		mark := " "
		if v.Question.OptionLabel(i) == v.Question.UserAnswer {
			mark = "*"
		}
		fmt.Fprintf(out, " %s %s\n", mark, opt)
	}
}

var stateMarks = map[model.OptionState]string{
	model.OptionCorrect:   "+",
	model.OptionIncorrect: "x",
	model.OptionNeutral:   " ",
}

func printReview(out io.Writer, res model.QuizResult) {
	fmt.Fprintf(out, "\nScore: %d/%d (%d%%)\n", res.Score, res.TotalQuestions, res.Percent())
	p := review.New(res)
	for {
		page, ok := p.Page()
		if !ok {
			return
		}
		fmt.Fprintf(out, "\n%d. %s\n", page.Index+1, page.Prompt)
		for _, opt := range page.Options {
			fmt.Fprintf(out, " %s %s\n", stateMarks[opt.State], opt.Text)
		}
		if !p.Next() {
			return
		}
	}
}
